package session

import (
	"strings"

	"github.com/MrWong99/lensrelay/internal/caption"
	"github.com/MrWong99/lensrelay/internal/config"
	"github.com/MrWong99/lensrelay/internal/stabilize"
)

// DisplayMode selects which events appear on the glasses.
type DisplayMode string

const (
	// ModeEverything shows translations and passthrough transcriptions.
	ModeEverything DisplayMode = "everything"

	// ModeTranslations shows translated text only.
	ModeTranslations DisplayMode = "translations"
)

// Settings is the per-user display and stabilization configuration.
type Settings struct {
	// SourceLanguage and TargetLanguage are BCP-47-shaped locales naming
	// the translation direction the user asked for.
	SourceLanguage string
	TargetLanguage string

	// LineWidth and NumberOfLines shape the caption rectangle.
	LineWidth     caption.LineWidth
	NumberOfLines int

	// DisplayMode gates passthrough transcriptions.
	DisplayMode DisplayMode

	// ConfidenceHeuristic selects the interim stabilization algorithm.
	ConfidenceHeuristic stabilize.Heuristic
}

// SettingsFromDefaults converts the JSON settings descriptor into a
// [Settings], falling back field-by-field where the descriptor holds an
// unknown value.
func SettingsFromDefaults(def config.SettingsDefaults) Settings {
	s := Settings{
		SourceLanguage: def.SourceLanguage,
		TargetLanguage: def.TargetLanguage,
		LineWidth:      caption.LineWidth(def.LineWidth),
		NumberOfLines:  def.NumberOfLines,
		DisplayMode:    DisplayMode(def.DisplayMode),
	}
	if s.DisplayMode != ModeEverything && s.DisplayMode != ModeTranslations {
		s.DisplayMode = ModeEverything
	}
	h, err := stabilize.ParseHeuristic(def.ConfidenceHeuristic)
	if err != nil {
		h = stabilize.HeuristicNone
	}
	s.ConfidenceHeuristic = h
	return s
}

// TargetIsCJK reports whether the target language is character-tokenized,
// which switches the stabilizer to per-character units and narrows the
// caption columns.
func (s Settings) TargetIsCJK() bool {
	switch config.LanguageSubtag(strings.ToLower(s.TargetLanguage)) {
	case "zh", "ja", "ko":
		return true
	}
	return false
}

// TargetIsPinyin reports whether the target asks for romanized Chinese, in
// which case glasses text is transliterated before display.
func (s Settings) TargetIsPinyin() bool {
	return strings.Contains(strings.ToLower(s.TargetLanguage), "pinyin")
}

// LanguageChanged reports whether the translation direction differs between
// two settings.
func (s Settings) LanguageChanged(prev Settings) bool {
	return s.SourceLanguage != prev.SourceLanguage || s.TargetLanguage != prev.TargetLanguage
}

// captionConfig derives the caption geometry from the settings.
func (s Settings) captionConfig() caption.Config {
	return caption.Config{
		LineWidth:     s.LineWidth,
		NumberOfLines: s.NumberOfLines,
		CJKTarget:     s.TargetIsCJK(),
	}
}
