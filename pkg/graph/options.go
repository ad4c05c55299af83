package graph

import "strings"

// ReadOption adjusts a property read.
type ReadOption func(*readOptions)

type readOptions struct {
	lang string
}

// WithLanguage restricts string values to lang. A trailing "?" makes the
// language optional: when no value matches, all values are returned.
func WithLanguage(lang string) ReadOption {
	return func(o *readOptions) { o.lang = lang }
}

// parseLanguage splits an optional-marker language setting.
func parseLanguage(lang string) (language string, optional bool) {
	if strings.HasSuffix(lang, "?") {
		return strings.TrimSuffix(lang, "?"), true
	}
	return lang, false
}
