// Package caption renders translation text into the fixed rectangle of the
// glasses display.
//
// A [Formatter] keeps a bounded history of final captions and composes each
// display frame from the most recent finals followed by the wrapped current
// interim, never exceeding the configured number of lines — the oldest lines
// scroll off the top.
package caption

import "strings"

// MaxFinalCaptions bounds the final-caption history per user.
const MaxFinalCaptions = 100

// LineWidth is the user-selectable caption width.
type LineWidth string

const (
	WidthSmall  LineWidth = "Small"
	WidthMedium LineWidth = "Medium"
	WidthLarge  LineWidth = "Large"
)

// cjkWidthFactor halves the effective columns for character-tokenized
// targets, approximating double-width glyph rendering on the display.
const cjkWidthFactor = 0.5

// Columns returns the character columns for a width on a Latin-script
// display. Unknown widths fall back to Medium.
func (w LineWidth) Columns() int {
	switch w {
	case WidthSmall:
		return 25
	case WidthLarge:
		return 45
	default:
		return 35
	}
}

// Config holds the display geometry for a [Formatter].
type Config struct {
	// LineWidth selects the base character columns.
	LineWidth LineWidth

	// NumberOfLines is the visible line count, in [1,5].
	NumberOfLines int

	// CJKTarget applies the character-width multiplier to the columns.
	CJKTarget bool

	// MaxFinals overrides the final-history bound. Default [MaxFinalCaptions].
	MaxFinals int
}

// effectiveColumns applies the CJK multiplier to the configured width.
func (c Config) effectiveColumns() int {
	cols := c.LineWidth.Columns()
	if c.CJKTarget {
		cols = int(float64(cols) * cjkWidthFactor)
	}
	if cols < 1 {
		cols = 1
	}
	return cols
}

// Formatter wraps caption text into display frames. It is owned by a single
// session worker and is not safe for concurrent use.
type Formatter struct {
	cfg  Config
	cols int

	// finalTexts is the raw final history, retained so a reconfiguration can
	// replay it through new geometry. finalLines is the same history already
	// wrapped to the current geometry.
	finalTexts []string
	finalLines []string
}

// NewFormatter creates a Formatter for the given geometry. NumberOfLines is
// clamped to [1,5].
func NewFormatter(cfg Config) *Formatter {
	if cfg.NumberOfLines < 1 {
		cfg.NumberOfLines = 1
	}
	if cfg.NumberOfLines > 5 {
		cfg.NumberOfLines = 5
	}
	if cfg.MaxFinals <= 0 {
		cfg.MaxFinals = MaxFinalCaptions
	}
	return &Formatter{
		cfg:  cfg,
		cols: cfg.effectiveColumns(),
	}
}

// ProcessString renders the next display frame. Final text is appended to
// the bounded final history; interim text composes a frame on top of the
// history without mutating it.
func (f *Formatter) ProcessString(text string, isFinal bool) string {
	if isFinal {
		f.appendFinal(text)
		return f.frame(nil)
	}
	return f.frame(WrapText(text, f.cols))
}

// Clear empties the final-caption history.
func (f *Formatter) Clear() {
	f.finalTexts = nil
	f.finalLines = nil
}

// FinalCount returns the number of retained final captions.
func (f *Formatter) FinalCount() int { return len(f.finalTexts) }

// Reconfigure applies new display geometry and replays the retained final
// history through it, so wrapping adapts to the new width.
func (f *Formatter) Reconfigure(cfg Config) {
	retained := f.finalTexts

	nf := NewFormatter(cfg)
	f.cfg = nf.cfg
	f.cols = nf.cols
	f.finalTexts = nil
	f.finalLines = nil

	for _, text := range retained {
		f.appendFinal(text)
	}
}

// appendFinal adds a final caption, evicting the oldest when over capacity.
func (f *Formatter) appendFinal(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	f.finalTexts = append(f.finalTexts, text)
	if len(f.finalTexts) > f.cfg.MaxFinals {
		f.finalTexts = f.finalTexts[len(f.finalTexts)-f.cfg.MaxFinals:]
		f.rewrap()
		return
	}
	f.finalLines = append(f.finalLines, WrapText(text, f.cols)...)
}

// rewrap rebuilds the wrapped line cache from the retained final texts.
func (f *Formatter) rewrap() {
	f.finalLines = f.finalLines[:0]
	for _, text := range f.finalTexts {
		f.finalLines = append(f.finalLines, WrapText(text, f.cols)...)
	}
}

// frame joins the final history plus the interim lines, keeping only the
// most recent NumberOfLines lines.
func (f *Formatter) frame(interimLines []string) string {
	total := len(f.finalLines) + len(interimLines)
	lines := make([]string, 0, total)
	lines = append(lines, f.finalLines...)
	lines = append(lines, interimLines...)
	if len(lines) > f.cfg.NumberOfLines {
		lines = lines[len(lines)-f.cfg.NumberOfLines:]
	}
	return strings.Join(lines, "\n")
}
