// Package config provides the configuration schema and loaders for the
// Lensrelay translation relay.
//
// Configuration comes from three places:
//
//   - the process environment (required credentials, port, deployment mode),
//     optionally seeded from a .env file;
//   - an optional YAML server config file (listen address, log level,
//     endpoint overrides, the unsupported-combination table);
//   - a JSON settings descriptor holding the default user settings applied
//     when a user has no stored settings or their settings cannot be read.
package config

import "strings"

// LogLevel controls logging verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a known log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root YAML configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig       `yaml:"server"`
	Upstream    UpstreamConfig     `yaml:"upstream"`
	Unsupported []UnsupportedCombo `yaml:"unsupported_combinations"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on. When empty,
	// the PORT environment variable decides.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn",
	// "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// UpstreamConfig overrides the cloud endpoints. Empty values use the
// built-in production endpoints.
type UpstreamConfig struct {
	// StreamURL is the translation stream WebSocket endpoint.
	StreamURL string `yaml:"stream_url"`

	// DisplayURL is the glasses display WebSocket endpoint.
	DisplayURL string `yaml:"display_url"`
}

// UnsupportedCombo names a (device model, target language) pair the display
// hardware cannot render. Matched combinations get a fixed explanatory
// caption instead of a live subscription.
type UnsupportedCombo struct {
	// DeviceModel is the glasses hardware model, matched case-insensitively.
	DeviceModel string `yaml:"device_model"`

	// TargetLanguage is the unsupported target, compared by language
	// subtag (the part before the first '-').
	TargetLanguage string `yaml:"target_language"`

	// Message is the caption shown to the wearer. A default message is
	// used when empty.
	Message string `yaml:"message"`
}

// IsUnsupported looks up the (device, target language) pair in the table and
// returns the explanatory message on a match.
func (c *Config) IsUnsupported(deviceModel, targetLanguage string) (string, bool) {
	lang := LanguageSubtag(targetLanguage)
	for _, u := range c.Unsupported {
		if !strings.EqualFold(u.DeviceModel, deviceModel) {
			continue
		}
		if !strings.EqualFold(LanguageSubtag(u.TargetLanguage), lang) {
			continue
		}
		msg := u.Message
		if msg == "" {
			msg = "This language is not supported on your glasses model."
		}
		return msg, true
	}
	return "", false
}

// LanguageSubtag returns the language part of a BCP-47-shaped locale: the
// substring before the first '-'. An empty locale yields an empty subtag.
func LanguageSubtag(locale string) string {
	if i := strings.IndexByte(locale, '-'); i >= 0 {
		return locale[:i]
	}
	return locale
}
