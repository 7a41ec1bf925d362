package output

import (
	"os"
)

// GetDefaultFormat returns appropriate default based on environment
func GetDefaultFormat() Format {
	// Explicit override
	if f := Format(os.Getenv("GAMIFY_OUTPUT")); f == FormatJSON || f == FormatYAML || f == FormatTable {
		return f
	}

	// CI/CD context
	if os.Getenv("CI") == "true" {
		return FormatJSON
	}

	// Interactive terminal (default)
	return FormatTable
}
