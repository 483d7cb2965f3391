package selection

// PatternGroup is a named, reusable set of glob patterns that can be
// unioned into a FileSelection's include or exclude pattern set and
// later un-unioned independently of patterns added from elsewhere
// (§3 "groups: mapping from group name to pattern-group").
type PatternGroup struct {
	Name     string
	Patterns []string
}

// CommonGroups are the predefined, well-known pattern groups every
// selection can reference by name (§3).
var CommonGroups = map[string]*PatternGroup{
	"office_documents": {
		Name: "office_documents",
		Patterns: []string{
			"*.doc", "*.docx", "*.xls", "*.xlsx", "*.ppt", "*.pptx",
			"*.pdf", "*.odt", "*.ods", "*.odp", "*.rtf", "*.txt",
		},
	},
	"temporary_files": {
		Name: "temporary_files",
		Patterns: []string{
			"*.tmp", "*.temp", "*~", "*.bak", "*.swp", "*.cache",
			".DS_Store", "Thumbs.db",
		},
	},
	"media_files": {
		Name: "media_files",
		Patterns: []string{
			"*.jpg", "*.jpeg", "*.png", "*.gif", "*.bmp", "*.svg", "*.webp",
			"*.mp3", "*.mp4", "*.avi", "*.mov", "*.mkv", "*.wav", "*.flac",
		},
	},
	"source_code": {
		Name: "source_code",
		Patterns: []string{
			"*.py", "*.go", "*.js", "*.ts", "*.java", "*.c", "*.cpp",
			"*.h", "*.hpp", "*.rs", "*.rb", "*.php", "*.sh",
		},
	},
}
