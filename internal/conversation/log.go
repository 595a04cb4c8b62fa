// Package conversation maintains the per-user ordered log of translation
// entries that backs the viewer surface.
//
// The log distinguishes "the same utterance being refined" from "a new
// utterance": while an interim is open, further interims update the same
// entry in place, and the closing final promotes it without changing its ID.
// The log is bounded; the oldest entries are evicted FIFO once the capacity
// is exceeded.
package conversation

import (
	"fmt"
	"sync"
	"time"
)

// defaultCapacity is the maximum number of entries retained per user.
const defaultCapacity = 500

// Log is an insertion-ordered, bounded conversation log.
// All exported methods are safe for concurrent use.
type Log struct {
	mu sync.Mutex

	entries map[string]*Entry
	order   []string

	// currentInterimID names the open (non-final) entry being refined, or ""
	// when no interim is open.
	currentInterimID string

	counter  uint64
	capacity int
	pair     LanguagePair

	now func() time.Time
}

// Option configures a [Log] during construction.
type Option func(*Log)

// WithCapacity overrides the maximum number of retained entries.
// The default is 500.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// NewLog creates an empty conversation log.
func NewLog(opts ...Option) *Log {
	l := &Log{
		entries:  make(map[string]*Entry),
		capacity: defaultCapacity,
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// AddTranslation records a translation event in the log and returns a copy of
// the entry that was created or updated.
//
// The same-utterance contract:
//
//   - interim while an interim is open → the open entry is updated in place;
//   - final while an interim is open → the open entry is promoted (same ID,
//     IsFinal=true, IsNewUtterance=true) and the interim is closed;
//   - otherwise → a new entry is appended; a new interim stays open until its
//     final arrives.
//
// Events carrying no text at all produce no entry and return nil.
func (l *Log) AddTranslation(originalText, translatedText, originalLang, translatedLang string, isFinal bool) *Entry {
	if originalText == "" && translatedText == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	nowMs := l.now().UnixMilli()

	if l.currentInterimID != "" {
		e, ok := l.entries[l.currentInterimID]
		if ok {
			e.OriginalText = originalText
			e.TranslatedText = translatedText
			e.OriginalLanguage = originalLang
			e.TranslatedLanguage = translatedLang
			e.Timestamp = nowMs
			if isFinal {
				e.IsFinal = true
				e.IsNewUtterance = true
				l.currentInterimID = ""
			}
			out := *e
			return &out
		}
		// The open entry was evicted; fall through and start a new one.
		l.currentInterimID = ""
	}

	l.counter++
	e := &Entry{
		ID:                 fmt.Sprintf("entry-%d", l.counter),
		Timestamp:          nowMs,
		OriginalText:       originalText,
		TranslatedText:     translatedText,
		OriginalLanguage:   originalLang,
		TranslatedLanguage: translatedLang,
		IsFinal:            isFinal,
		IsNewUtterance:     isFinal,
	}
	l.entries[e.ID] = e
	l.order = append(l.order, e.ID)
	if !isFinal {
		l.currentInterimID = e.ID
	}

	l.evict()

	out := *e
	return &out
}

// Entries returns a snapshot of all entries in insertion order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, len(l.order))
	for _, id := range l.order {
		if e, ok := l.entries[id]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// Clear empties the log. The entry counter is not reset, so IDs remain unique
// for the lifetime of a viewer's connection.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make(map[string]*Entry)
	l.order = nil
	l.currentInterimID = ""
}

// SetLanguagePair records the (from, to) languages the log operates under.
func (l *Log) SetLanguagePair(from, to string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pair = LanguagePair{From: from, To: to}
}

// LanguagePair returns the current language pair.
func (l *Log) LanguagePair() LanguagePair {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pair
}

// evict drops the oldest entries until the log fits its capacity.
// Must be called with l.mu held.
func (l *Log) evict() {
	for len(l.order) > l.capacity {
		oldest := l.order[0]
		l.order = l.order[1:]
		if l.currentInterimID == oldest {
			l.currentInterimID = ""
		}
		delete(l.entries, oldest)
	}
}
