// Package db persists client settings in a small SQLite database.
package db

import "time"

// Setting keys.
const (
	KeySelectedLanguage = "selectedLanguage"
	KeyTheme            = "theme"
)

// Setting is one persisted key-value pair.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
