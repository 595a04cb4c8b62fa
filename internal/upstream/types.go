package upstream

import (
	"context"
	"time"
)

// TranslationEvent is one incremental speech-translation result delivered by
// the cloud translation stream. Both interim and final results use this
// type.
//
// A subscription names a (source, target) locale pair, but the stream may
// deliver events for either direction of that pair; consumers decide per
// event whether it belongs on the display, in the log, or both.
type TranslationEvent struct {
	// SessionID identifies the upstream session the event belongs to.
	SessionID string `json:"sessionId"`

	// UserID identifies the wearer.
	UserID string `json:"userId"`

	// OriginalText is the text as heard, in the source language.
	OriginalText string `json:"originalText"`

	// TranslatedText is the translated rendition. When DidTranslate is
	// false this carries the raw transcription instead.
	TranslatedText string `json:"translatedText"`

	// SourceLocale and TargetLocale are BCP-47-shaped strings describing
	// the direction of this particular event.
	SourceLocale string `json:"sourceLocale"`
	TargetLocale string `json:"targetLocale"`

	// DidTranslate reports whether a translation was performed. False means
	// passthrough transcription.
	DidTranslate bool `json:"didTranslate"`

	// IsFinal marks the terminal event of an utterance.
	IsFinal bool `json:"isFinal"`

	// ReceivedAt is stamped locally when the event is read off the wire.
	ReceivedAt time.Time `json:"-"`
}

// StreamConfig names the locale pair a subscription asks the upstream
// source for.
type StreamConfig struct {
	SessionID    string
	SourceLocale string
	TargetLocale string
}

// Subscription is a live upstream event stream. The Events channel closes
// when the subscription is disposed or the upstream disconnects; consumers
// treat the close as a session stop.
type Subscription interface {
	// Events returns the ordered event stream.
	Events() <-chan TranslationEvent

	// Close disposes the subscription. Safe to call more than once.
	Close() error
}

// Source is the consumer-side contract of the upstream translation service.
type Source interface {
	// Subscribe opens a translation stream for the given locale pair.
	Subscribe(ctx context.Context, cfg StreamConfig) (Subscription, error)
}
