package cli

// Default values for CLI flags and formatted output.
const (
	// AppName prefixes the user agent and the lockfile generator.
	AppName = "promptreg"
	// MaxDescriptionLength is the maximum length of a bundle description to display.
	MaxDescriptionLength = 50
	// DefaultHistoryLimit is the number of history entries shown by default.
	DefaultHistoryLimit = 20
	// TabWidth is the width of tabs in formatted output.
	TabWidth = 2
)
