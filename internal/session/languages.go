package session

import "github.com/MrWong99/lensrelay/internal/config"

// languageNames maps language subtags to the human-readable names used in
// conversation log entries. Locales outside the table fall back to the raw
// locale string.
var languageNames = map[string]string{
	"ar": "Arabic",
	"de": "German",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"hi": "Hindi",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"nl": "Dutch",
	"pl": "Polish",
	"pt": "Portuguese",
	"ru": "Russian",
	"th": "Thai",
	"tr": "Turkish",
	"uk": "Ukrainian",
	"vi": "Vietnamese",
	"zh": "Chinese",
}

// defaultLocale routes unknown or empty locales so that one mislabelled
// event cannot break log attribution.
const defaultLocale = "en-US"

// languageName returns the display name for a locale. Empty locales route
// through the default locale.
func languageName(locale string) string {
	if locale == "" {
		locale = defaultLocale
	}
	if name, ok := languageNames[config.LanguageSubtag(locale)]; ok {
		return name
	}
	return locale
}
