package diagram

// Default editor settings.
const (
	DefaultEditorURL   = "https://embed.diagrams.net/"
	DefaultEditorTheme = "dark"
)

// Options is the per-diagram display configuration.
type Options struct {
	Zoom        string `yaml:"zoom" json:"zoom"`
	Center      bool   `yaml:"center" json:"center"`
	Scale       bool   `yaml:"scale" json:"scale"`
	Lock        bool   `yaml:"lock" json:"lock"`
	Grid        bool   `yaml:"grid" json:"grid"`
	Tooltip     bool   `yaml:"tooltip" json:"tooltip"`
	Background  string `yaml:"background" json:"background"`
	EditorURL   string `yaml:"editorUrl" json:"editorUrl"`
	EditorTheme string `yaml:"editorTheme" json:"editorTheme"`
}

// DefaultOptions returns the options of a new diagram.
func DefaultOptions() Options {
	return Options{
		Zoom:        "100%",
		Center:      true,
		Scale:       true,
		Lock:        true,
		Grid:        false,
		Tooltip:     true,
		EditorURL:   DefaultEditorURL,
		EditorTheme: DefaultEditorTheme,
	}
}
