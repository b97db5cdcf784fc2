package recognizer

import (
	"errors"
	"strings"
)

var ErrNoLocales = errors.New("at least one locale is required")

// Options carries the non-locale parts of Params.
type Options struct {
	PartialResults bool
	Punctuation    bool
	Timeouts       Timeouts
}

// BuildParams derives attempt parameters from an ordered locale list. The
// first locale is primary. Detection is enabled only when more than one
// distinct locale is given and the backend supports it.
func BuildParams(locales []string, caps Capabilities, opts Options) (Params, error) {
	cleaned := make([]string, 0, len(locales))
	seen := make(map[string]struct{}, len(locales))
	for _, locale := range locales {
		locale = strings.TrimSpace(locale)
		if locale == "" {
			continue
		}
		key := strings.ToLower(locale)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, locale)
	}
	if len(cleaned) == 0 {
		return Params{}, ErrNoLocales
	}

	params := Params{
		Locale:         cleaned[0],
		PartialResults: opts.PartialResults,
		Punctuation:    opts.Punctuation,
		Timeouts:       opts.Timeouts,
	}
	if len(cleaned) > 1 && caps.LanguageDetection {
		params.LanguageDetection = true
		params.DetectionLocales = cleaned
	}
	return params, nil
}
