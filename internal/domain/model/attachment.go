package model

import "time"

// AttachmentRecord — метаданные вложения ALM.
// Хранится в таблице attachment_cache; содержимое лежит в колонке data.
type AttachmentRecord struct {
	// OwnerUser — логин пользователя ALM
	OwnerUser string
	// Domain — домен ALM
	Domain string
	// Project — проект ALM
	Project string
	// AttachmentID — идентификатор вложения в ALM
	AttachmentID string
	// ParentType — тип родительской сущности (test, test-folder, design-step, test-set, defect)
	ParentType string
	// ParentID — идентификатор родительской сущности
	ParentID string
	// Name — имя файла вложения
	Name string
	// ContentType — MIME-тип содержимого
	ContentType string
	// Size — размер содержимого в байтах
	Size int64
	// Data — содержимое вложения
	Data []byte
	// DownloadedAt — время скачивания
	DownloadedAt time.Time
}
