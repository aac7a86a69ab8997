package almconfig

// FieldConfig — конфигурация отображения одного поля коллекции.
type FieldConfig struct {
	// Field — системное имя поля (имя ALM или псевдополе user/parent_id)
	Field string
	// Alias — человекочитаемое имя
	Alias string
	// Sequence — порядок отображения
	Sequence int
	// Display — показывать ли поле по умолчанию
	Display bool
}

// Псевдополя, заполняемые нормализатором из аргументов вызова,
// а не из ответа ALM.
const (
	PseudoFieldUser       = "user"
	PseudoFieldParentID   = "parent_id"
	PseudoFieldParentType = "parent_type"
)

// attachmentFieldConfig — общая конфигурация полей для всех коллекций
// вложений; отличается только alias поля parent_id.
func attachmentFieldConfig(parentAlias string) []FieldConfig {
	return []FieldConfig{
		{Field: PseudoFieldUser, Alias: "Username", Sequence: 1, Display: false},
		{Field: "id", Alias: "Attachment ID", Sequence: 2, Display: true},
		{Field: "name", Alias: "File Name", Sequence: 3, Display: true},
		{Field: PseudoFieldParentID, Alias: parentAlias, Sequence: 4, Display: false},
		{Field: PseudoFieldParentType, Alias: "Parent Type", Sequence: 5, Display: false},
		{Field: "file-size", Alias: "File Size", Sequence: 6, Display: true},
		{Field: "description", Alias: "Description", Sequence: 7, Display: true},
	}
}

// fieldConfigs — конфигурация полей по коллекциям.
var fieldConfigs = map[string][]FieldConfig{
	ColDomains: {
		{Field: PseudoFieldUser, Alias: "Username", Sequence: 1, Display: false},
		{Field: "id", Alias: "Domain ID", Sequence: 2, Display: true},
		{Field: "name", Alias: "Domain Name", Sequence: 3, Display: true},
		{Field: PseudoFieldParentID, Alias: "Parent ID", Sequence: 4, Display: false},
	},
	ColProjects: {
		{Field: PseudoFieldUser, Alias: "Username", Sequence: 1, Display: false},
		{Field: "id", Alias: "Project ID", Sequence: 2, Display: true},
		{Field: "name", Alias: "Project Name", Sequence: 3, Display: true},
		{Field: PseudoFieldParentID, Alias: "Domain", Sequence: 4, Display: true},
	},
	ColTestplanFolders: {
		{Field: PseudoFieldUser, Alias: "Username", Sequence: 1, Display: false},
		{Field: "id", Alias: "Folder ID", Sequence: 2, Display: true},
		{Field: "name", Alias: "Folder Name", Sequence: 3, Display: true},
		{Field: PseudoFieldParentID, Alias: "Parent Folder ID", Sequence: 4, Display: false},
		{Field: "description", Alias: "Description", Sequence: 5, Display: true},
	},
	ColTestplanTests: {
		{Field: PseudoFieldUser, Alias: "Username", Sequence: 1, Display: false},
		{Field: "id", Alias: "Test ID", Sequence: 2, Display: true},
		{Field: "name", Alias: "Test Name", Sequence: 3, Display: true},
		{Field: PseudoFieldParentID, Alias: "Parent Folder ID", Sequence: 4, Display: false},
		{Field: "status", Alias: "Status", Sequence: 5, Display: true},
		{Field: "owner", Alias: "Owner", Sequence: 6, Display: true},
		{Field: "description", Alias: "Description", Sequence: 7, Display: true},
		{Field: "creation-time", Alias: "Created On", Sequence: 8, Display: true},
	},
	ColTestplanDesignSteps: {
		{Field: PseudoFieldUser, Alias: "Username", Sequence: 1, Display: false},
		{Field: "id", Alias: "Step ID", Sequence: 2, Display: true},
		{Field: "name", Alias: "Step Name", Sequence: 3, Display: true},
		{Field: PseudoFieldParentID, Alias: "Test ID", Sequence: 4, Display: false},
		{Field: "step-order", Alias: "Step Order", Sequence: 5, Display: true},
		{Field: "description", Alias: "Description", Sequence: 6, Display: true},
		{Field: "expected", Alias: "Expected Result", Sequence: 7, Display: true},
	},
	ColFolderAttachments:     attachmentFieldConfig("Folder ID"),
	ColTestAttachments:       attachmentFieldConfig("Test ID"),
	ColDesignStepAttachments: attachmentFieldConfig("Step ID"),
	ColTestSetAttachments:    attachmentFieldConfig("Test Set ID"),
	ColDefectAttachments:     attachmentFieldConfig("Defect ID"),
	ColReleaseFolders: {
		{Field: PseudoFieldUser, Alias: "Username", Sequence: 1, Display: false},
		{Field: "id", Alias: "Release Folder ID", Sequence: 2, Display: true},
		{Field: "name", Alias: "Release Folder Name", Sequence: 3, Display: true},
		{Field: PseudoFieldParentID, Alias: "Parent Folder ID", Sequence: 4, Display: false},
		{Field: "description", Alias: "Description", Sequence: 5, Display: true},
	},
	ColReleases: {
		{Field: PseudoFieldUser, Alias: "Username", Sequence: 1, Display: false},
		{Field: "id", Alias: "Release ID", Sequence: 2, Display: true},
		{Field: "name", Alias: "Release Name", Sequence: 3, Display: true},
		{Field: PseudoFieldParentID, Alias: "Release Folder ID", Sequence: 4, Display: false},
		{Field: "start-date", Alias: "Start Date", Sequence: 5, Display: true},
		{Field: "end-date", Alias: "End Date", Sequence: 6, Display: true},
		{Field: "description", Alias: "Description", Sequence: 7, Display: true},
	},
	ColReleaseCycles: {
		{Field: PseudoFieldUser, Alias: "Username", Sequence: 1, Display: false},
		{Field: "id", Alias: "Cycle ID", Sequence: 2, Display: true},
		{Field: "name", Alias: "Cycle Name", Sequence: 3, Display: true},
		{Field: PseudoFieldParentID, Alias: "Release ID", Sequence: 4, Display: false},
		{Field: "start-date", Alias: "Start Date", Sequence: 5, Display: true},
		{Field: "end-date", Alias: "End Date", Sequence: 6, Display: true},
	},
	ColTestSets: {
		{Field: PseudoFieldUser, Alias: "Username", Sequence: 1, Display: false},
		{Field: "id", Alias: "Test Set ID", Sequence: 2, Display: true},
		{Field: "name", Alias: "Test Set Name", Sequence: 3, Display: true},
		{Field: PseudoFieldParentID, Alias: "Cycle ID", Sequence: 4, Display: false},
		{Field: "status", Alias: "Status", Sequence: 5, Display: true},
		{Field: "open-date", Alias: "Open Date", Sequence: 6, Display: true},
	},
	ColTestRuns: {
		{Field: PseudoFieldUser, Alias: "Username", Sequence: 1, Display: false},
		{Field: "id", Alias: "Test Run ID", Sequence: 2, Display: true},
		{Field: "name", Alias: "Test Run Name", Sequence: 3, Display: true},
		{Field: PseudoFieldParentID, Alias: "Test Set ID", Sequence: 4, Display: false},
		{Field: "test-id", Alias: "Test Case ID", Sequence: 5, Display: true},
		{Field: "status", Alias: "Status", Sequence: 6, Display: true},
		{Field: "owner", Alias: "Owner", Sequence: 7, Display: true},
		{Field: "execution-date", Alias: "Execution Date", Sequence: 8, Display: true},
	},
	ColDefects: {
		{Field: PseudoFieldUser, Alias: "Username", Sequence: 1, Display: false},
		{Field: "id", Alias: "Defect ID", Sequence: 2, Display: true},
		{Field: "name", Alias: "Defect Summary", Sequence: 3, Display: true},
		{Field: PseudoFieldParentID, Alias: "Project ID", Sequence: 4, Display: false},
		{Field: "status", Alias: "Status", Sequence: 5, Display: true},
		{Field: "severity", Alias: "Severity", Sequence: 6, Display: true},
		{Field: "priority", Alias: "Priority", Sequence: 7, Display: true},
		{Field: "owner", Alias: "Owner", Sequence: 8, Display: true},
		{Field: "detected-by", Alias: "Detected By", Sequence: 9, Display: true},
		{Field: "assigned-to", Alias: "Assigned To", Sequence: 10, Display: true},
		{Field: "creation-time", Alias: "Created On", Sequence: 11, Display: true},
		{Field: "last-modified", Alias: "Last Modified", Sequence: 12, Display: true},
		{Field: "detected-in-rel", Alias: "Detected In Release", Sequence: 13, Display: true},
		{Field: "detected-in-rcyc", Alias: "Detected In Cycle", Sequence: 14, Display: true},
		{Field: "target-rel", Alias: "Target Release", Sequence: 15, Display: true},
		{Field: "target-rcyc", Alias: "Target Cycle", Sequence: 16, Display: true},
		{Field: "reproducible", Alias: "Reproducible", Sequence: 17, Display: true},
		{Field: "has-attachments", Alias: "Has Attachments", Sequence: 18, Display: true},
		{Field: "description", Alias: "Description", Sequence: 19, Display: true},
		{Field: "steps-to-reproduce", Alias: "Steps to Reproduce", Sequence: 20, Display: true},
		{Field: "expected-result", Alias: "Expected Result", Sequence: 21, Display: true},
		{Field: "actual-result", Alias: "Actual Result", Sequence: 22, Display: true},
		{Field: "resolution", Alias: "Resolution", Sequence: 23, Display: true},
	},
}

// FieldConfigFor возвращает конфигурацию полей коллекции.
// Для неизвестной коллекции возвращается nil.
func FieldConfigFor(collection string) []FieldConfig {
	return fieldConfigs[collection]
}
