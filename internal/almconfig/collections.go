// Пакет almconfig — статическая конфигурация REST API ALM:
// виды сущностей, маршрутизация в коллекции хранилища,
// конфигурация полей и шаблоны эндпоинтов.
package almconfig

import "fmt"

// Виды сущностей ALM.
const (
	KindDomain        = "domain"
	KindProject       = "project"
	KindTestFolder    = "test-folder"
	KindTest          = "test"
	KindDesignStep    = "design-step"
	KindReleaseFolder = "release-folder"
	KindRelease       = "release"
	KindReleaseCycle  = "release-cycle"
	KindTestSet       = "test-set"
	KindTestRun       = "test-run"
	KindDefect        = "defect"
	KindAttachment    = "attachment"
)

// Имена коллекций хранилища.
const (
	ColDomains               = "domains"
	ColProjects              = "projects"
	ColTestplanFolders       = "testplan_folders"
	ColTestplanTests         = "testplan_tests"
	ColTestplanDesignSteps   = "testplan_test_design_steps"
	ColFolderAttachments     = "testplan_folder_attachments"
	ColTestAttachments       = "testplan_test_attachments"
	ColDesignStepAttachments = "testplan_test_design_step_attachments"
	ColReleaseFolders        = "testlab_release_folders"
	ColReleases              = "testlab_releases"
	ColReleaseCycles         = "testlab_release_cycles"
	ColTestSets              = "testlab_testsets"
	ColTestRuns              = "testlab_testruns"
	ColTestSetAttachments    = "testlab_testset_attachments"
	ColDefects               = "defects"
	ColDefectAttachments     = "defect_attachments"
)

// kindToCollection — прямое соответствие вида сущности коллекции
// (для всех видов, кроме вложений).
var kindToCollection = map[string]string{
	KindDomain:        ColDomains,
	KindProject:       ColProjects,
	KindTestFolder:    ColTestplanFolders,
	KindTest:          ColTestplanTests,
	KindDesignStep:    ColTestplanDesignSteps,
	KindReleaseFolder: ColReleaseFolders,
	KindRelease:       ColReleases,
	KindReleaseCycle:  ColReleaseCycles,
	KindTestSet:       ColTestSets,
	KindTestRun:       ColTestRuns,
	KindDefect:        ColDefects,
}

// attachmentCollections — разветвление вложений по виду родителя.
// Вложения папок, тестов, шагов, наборов и дефектов лежат в разных
// коллекциях, чтобы экспортировать каждый вид независимо без
// фильтрации по parent-type.
var attachmentCollections = map[string]string{
	KindTestFolder: ColFolderAttachments,
	KindTest:       ColTestAttachments,
	KindDesignStep: ColDesignStepAttachments,
	KindTestSet:    ColTestSetAttachments,
	KindDefect:     ColDefectAttachments,
}

// ResolveCollection возвращает имя коллекции для вида сущности.
// Для вложений коллекция зависит от вида родителя (parentKind).
// Неизвестный вид — ошибка конфигурации, а не условие времени выполнения.
func ResolveCollection(kind, parentKind string) (string, error) {
	if kind == KindAttachment {
		col, ok := attachmentCollections[parentKind]
		if !ok {
			return "", fmt.Errorf("неизвестный вид родителя вложения: %q", parentKind)
		}
		return col, nil
	}
	col, ok := kindToCollection[kind]
	if !ok {
		return "", fmt.Errorf("неизвестный вид сущности: %q", kind)
	}
	return col, nil
}

// Collections возвращает полный список коллекций сущностей.
func Collections() []string {
	return []string{
		ColDomains,
		ColProjects,
		ColTestplanFolders,
		ColTestplanTests,
		ColTestplanDesignSteps,
		ColFolderAttachments,
		ColTestAttachments,
		ColDesignStepAttachments,
		ColReleaseFolders,
		ColReleases,
		ColReleaseCycles,
		ColTestSets,
		ColTestRuns,
		ColTestSetAttachments,
		ColDefects,
		ColDefectAttachments,
	}
}

// KnownCollection сообщает, существует ли коллекция с таким именем.
func KnownCollection(name string) bool {
	for _, c := range Collections() {
		if c == name {
			return true
		}
	}
	return false
}

// RootParentID — значение parent-id корневых узлов деревьев проекта:
// папки test plan и папки релизов верхнего уровня ссылаются на 0.
const RootParentID = "0"

// ChildFilterID возвращает значение фильтра parent-id для выборки
// детей узла. Домен и проект уже зашиты в путь эндпоинта, поэтому
// их дети выбираются по корневому parent-id, а не по id родителя.
func ChildFilterID(parentKind, parentID string) string {
	if parentKind == KindProject {
		return RootParentID
	}
	return parentID
}

// ChildKinds возвращает виды непосредственных детей для вида сущности.
// Порядок фиксирован: контейнерные виды первыми, листовые после.
func ChildKinds(kind string) []string {
	switch kind {
	case KindDomain:
		return []string{KindProject}
	case KindProject:
		return []string{KindTestFolder, KindReleaseFolder, KindDefect}
	case KindTestFolder:
		return []string{KindTestFolder, KindTest, KindAttachment}
	case KindTest:
		return []string{KindDesignStep, KindAttachment}
	case KindDesignStep:
		return []string{KindAttachment}
	case KindReleaseFolder:
		// Папки релизов вкладываются друг в друга, как папки test plan
		return []string{KindReleaseFolder, KindRelease}
	case KindRelease:
		return []string{KindReleaseCycle}
	case KindReleaseCycle:
		return []string{KindTestSet}
	case KindTestSet:
		return []string{KindTestRun, KindAttachment}
	case KindDefect:
		return []string{KindAttachment}
	default:
		return nil
	}
}
