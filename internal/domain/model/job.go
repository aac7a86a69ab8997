package model

import "time"

// Статусы задачи извлечения.
const (
	// JobStatusPending — задача создана, обход ещё не начался
	JobStatusPending = "pending"
	// JobStatusInProgress — обход выполняется
	JobStatusInProgress = "in_progress"
	// JobStatusCompleted — обход завершён без фатальных ошибок
	JobStatusCompleted = "completed"
	// JobStatusFailed — обход прерван фатальной ошибкой
	JobStatusFailed = "failed"
)

// JobCounters — счётчики задачи извлечения по видам сущностей.
// Все обновления аддитивны: новое значение = старое + приращение.
type JobCounters struct {
	// Folders — папок test plan сохранено
	Folders int `json:"folders"`
	// Tests — тестов сохранено
	Tests int `json:"tests"`
	// DesignSteps — шагов дизайна сохранено
	DesignSteps int `json:"design_steps"`
	// ReleaseFolders — папок релизов сохранено
	ReleaseFolders int `json:"release_folders"`
	// Releases — релизов сохранено
	Releases int `json:"releases"`
	// Cycles — циклов сохранено
	Cycles int `json:"cycles"`
	// TestSets — наборов тестов сохранено
	TestSets int `json:"test_sets"`
	// Runs — прогонов сохранено
	Runs int `json:"runs"`
	// Defects — дефектов сохранено
	Defects int `json:"defects"`
	// AttachmentsFound — вложений обнаружено (метаданные сохранены)
	AttachmentsFound int `json:"attachments_found"`
	// AttachmentsDownloaded — вложений скачано в кэш
	AttachmentsDownloaded int `json:"attachments_downloaded"`
}

// Add прибавляет приращение к счётчикам.
func (c *JobCounters) Add(delta JobCounters) {
	c.Folders += delta.Folders
	c.Tests += delta.Tests
	c.DesignSteps += delta.DesignSteps
	c.ReleaseFolders += delta.ReleaseFolders
	c.Releases += delta.Releases
	c.Cycles += delta.Cycles
	c.TestSets += delta.TestSets
	c.Runs += delta.Runs
	c.Defects += delta.Defects
	c.AttachmentsFound += delta.AttachmentsFound
	c.AttachmentsDownloaded += delta.AttachmentsDownloaded
}

// ExtractionJob — задача рекурсивного извлечения.
// Хранится в таблице extraction_jobs; единственная мутируемая
// сущность модели, отражающая прогресс обхода.
type ExtractionJob struct {
	// JobID — UUID задачи
	JobID string
	// OwnerUser — логин пользователя ALM, запустившего задачу
	OwnerUser string
	// Domain — домен ALM
	Domain string
	// Project — проект ALM
	Project string
	// RootEntityID — идентификатор корневой сущности
	RootEntityID string
	// RootEntityKind — вид корневой сущности (test-folder, release-folder и т.д.)
	RootEntityKind string
	// Status — pending, in_progress, completed, failed
	Status string
	// Counters — накопительные счётчики по видам сущностей
	Counters JobCounters
	// Notes — нефатальные граничные условия (достигнут потолок глубины и т.п.)
	Notes []string
	// Error — текст фатальной ошибки (для status=failed)
	Error *string
	// StartedAt — время запуска
	StartedAt time.Time
	// CompletedAt — время завершения (nil, пока обход не окончен)
	CompletedAt *time.Time
}
