// Package glasses wraps the heads-up display surface. Its single operation
// shows a wall of text on the primary view until it is superseded or its
// display duration expires; writing an empty string clears the display.
package glasses

import (
	"context"
	"time"
)

const (
	// FinalDuration is how long a final caption stays visible when no
	// further frame supersedes it.
	FinalDuration = 20 * time.Second

	// WarningDuration is how long an unsupported-combination warning stays
	// visible.
	WarningDuration = 10 * time.Second
)

// DisplayRequest is one text-wall update.
type DisplayRequest struct {
	// Text is the full content to display. Empty clears the display.
	Text string

	// Duration is how long the sink keeps the text visible. Zero means
	// "until superseded".
	Duration time.Duration
}

// Sink is the idempotent display surface contract.
type Sink interface {
	// ShowTextWall replaces the current text wall on the primary view.
	ShowTextWall(ctx context.Context, req DisplayRequest) error
}
