package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// SettingsDefaults is the JSON settings descriptor loaded at startup. It
// supplies the user settings applied when a user has none of their own or
// when their settings cannot be read.
type SettingsDefaults struct {
	SourceLanguage      string `json:"sourceLanguage"`
	TargetLanguage      string `json:"targetLanguage"`
	LineWidth           string `json:"lineWidth"`
	NumberOfLines       int    `json:"numberOfLines"`
	DisplayMode         string `json:"displayMode"`
	ConfidenceHeuristic string `json:"confidenceHeuristic"`
}

// builtinDefaults is the fallback when no descriptor file is available.
var builtinDefaults = SettingsDefaults{
	SourceLanguage:      "en-US",
	TargetLanguage:      "es-ES",
	LineWidth:           "Medium",
	NumberOfLines:       3,
	DisplayMode:         "everything",
	ConfidenceHeuristic: "WordStability",
}

// LoadDefaults reads the JSON settings descriptor at path. A read or parse
// failure falls back to the built-in defaults with a single log entry — a
// broken descriptor must not keep the relay from starting.
func LoadDefaults(path string) SettingsDefaults {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("settings descriptor unavailable, using built-in defaults", "path", path, "err", err)
		return builtinDefaults
	}

	def := builtinDefaults
	if err := json.Unmarshal(data, &def); err != nil {
		slog.Warn("settings descriptor malformed, using built-in defaults", "path", path, "err", err)
		return builtinDefaults
	}
	if err := validateDefaults(&def); err != nil {
		slog.Warn("settings descriptor invalid, using built-in defaults", "path", path, "err", err)
		return builtinDefaults
	}
	return def
}

// validateDefaults rejects descriptors whose values would produce a broken
// display.
func validateDefaults(def *SettingsDefaults) error {
	if def.NumberOfLines < 1 || def.NumberOfLines > 5 {
		return fmt.Errorf("numberOfLines %d is out of range [1,5]", def.NumberOfLines)
	}
	switch def.LineWidth {
	case "Small", "Medium", "Large":
	default:
		return fmt.Errorf("lineWidth %q is invalid; valid values: Small, Medium, Large", def.LineWidth)
	}
	switch def.DisplayMode {
	case "everything", "translations":
	default:
		return fmt.Errorf("displayMode %q is invalid; valid values: everything, translations", def.DisplayMode)
	}
	return nil
}
