// Package stabilize turns the noisy, oscillating sequence of partial
// translations for an utterance into a non-shrinking "confident prefix"
// suitable for a peripheral display.
//
// A [Stabilizer] consumes successive interim texts and emits the longest
// left-anchored run of tokens whose confidence exceeds a threshold. Once a
// prefix has been emitted it never shrinks until the utterance closes with a
// final (or the language pair changes), at which point [Stabilizer.Reset]
// clears all tracking state.
//
// Seven heuristics are available (see [Heuristic]). The word-detail buffer
// maintained here is updated on every interim whatever the heuristic;
// WordStability scores tokens from it, WordDuration and Hybrid blend it with
// their own signal, and PrefixRetention, EditDistance and TrailingWordDecay
// do not read it.
package stabilize

import (
	"math"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
)

const (
	// DefaultThreshold is the per-token confidence a token must exceed to be
	// part of the confident prefix.
	DefaultThreshold = 0.4

	// wordMatchSimilarity is the similarity bar an incoming token must clear
	// to be matched against an existing word detail. A token at exactly the
	// bar (e.g. "quik" vs "quick") starts a fresh detail instead.
	wordMatchSimilarity = 0.8

	// newWordStability is the stableCount assigned to a first-seen token.
	newWordStability = 0.2

	// stabilityTarget is the stableCount at which a token's count-based
	// confidence saturates at 1.
	stabilityTarget = 3.0

	positionHistoryCap = 5
	historyCap         = 20

	// Absent tokens decay rather than disappear: untouched for decayGrace,
	// then scaled down linearly over decayRamp with a decayFloor, and
	// discarded once the decayed count drops below discardBelow.
	decayGrace   = 2 * time.Second
	decayRamp    = 5 * time.Second
	decayFloor   = 0.1
	discardBelow = 0.5

	// positionProximityRange is the token-position distance at which the
	// proximity component of match scoring reaches zero.
	positionProximityRange = 5.0

	// maxWordDuration caps the WordDuration heuristic: a word present for
	// this long scores 1.
	maxWordDuration = time.Second
)

// wordDetail tracks one token across successive interims.
type wordDetail struct {
	word            string
	normalized      string
	stableCount     float64
	firstSeen       time.Time
	lastSeen        time.Time
	bestPosition    int
	positionHistory []int
}

// confidence is the per-token WordStability confidence: the saturating
// appearance count damped by how consistently the token holds its position.
func (d *wordDetail) confidence() float64 {
	c := d.stableCount / stabilityTarget
	if c > 1 {
		c = 1
	}
	return c * d.positionConsistency()
}

func (d *wordDetail) positionConsistency() float64 {
	if len(d.positionHistory) < 2 {
		return 1
	}
	var sum float64
	for _, p := range d.positionHistory {
		sum += float64(p)
	}
	mean := sum / float64(len(d.positionHistory))
	var variance float64
	for _, p := range d.positionHistory {
		diff := float64(p) - mean
		variance += diff * diff
	}
	variance /= float64(len(d.positionHistory))
	c := 1 - math.Sqrt(variance)/2
	if c < 0 {
		return 0
	}
	return c
}

// Option configures a [Stabilizer] during construction.
type Option func(*Stabilizer)

// WithHeuristic selects the confidence heuristic. Default: [HeuristicNone].
func WithHeuristic(h Heuristic) Option {
	return func(s *Stabilizer) { s.heuristic = h }
}

// WithThreshold overrides the per-token acceptance threshold.
// Default: [DefaultThreshold].
func WithThreshold(t float64) Option {
	return func(s *Stabilizer) { s.threshold = t }
}

// WithCJK switches tokenization to per-character units for
// character-tokenized target languages.
func WithCJK(cjk bool) Option {
	return func(s *Stabilizer) { s.cjk = cjk }
}

// Stabilizer holds the per-utterance confidence state for one display
// direction of one user. It is owned by that user's session worker and is
// not safe for concurrent use.
type Stabilizer struct {
	heuristic Heuristic
	threshold float64
	cjk       bool

	details []*wordDetail
	history []string // most recent interims, oldest first

	lastInterim      string
	lastPrefix       string
	lastPrefixTokens int
}

// New creates a Stabilizer with the given options.
func New(opts ...Option) *Stabilizer {
	s := &Stabilizer{
		heuristic: HeuristicNone,
		threshold: DefaultThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Heuristic returns the configured heuristic.
func (s *Stabilizer) Heuristic() Heuristic { return s.heuristic }

// Process consumes the next interim text and returns the confident prefix to
// display plus the overall interim confidence in [0,1].
//
// The returned prefix is non-shrinking: if the newly computed prefix has
// fewer tokens than the previously emitted one, the previous prefix is
// returned unchanged. Empty input returns an empty prefix with zero
// confidence and leaves all state untouched.
func (s *Stabilizer) Process(text string, at time.Time) (string, float64) {
	if text == "" {
		return "", 0
	}
	if s.heuristic == HeuristicNone {
		return text, 1
	}

	tokens := tokenize(text, s.cjk)
	if len(tokens) == 0 {
		return "", 0
	}

	prev := s.lastInterim
	tokenDetails := s.updateDetails(tokens, at)
	s.decay(at, tokenDetails)

	confs := s.tokenConfidences(tokens, tokenDetails, prev)

	var total float64
	for _, c := range confs {
		total += c
	}
	score := clamp01(total / float64(len(confs)))

	keep := 0
	for _, c := range confs {
		if c <= s.threshold {
			break
		}
		keep++
	}

	sep := " "
	if s.cjk {
		sep = ""
	}
	candidate := strings.Join(tokens[:keep], sep)

	if keep < s.lastPrefixTokens {
		candidate = s.lastPrefix
	} else {
		s.lastPrefix = candidate
		s.lastPrefixTokens = keep
	}

	s.history = append(s.history, text)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.lastInterim = text

	return candidate, score
}

// Reset clears all per-utterance tracking, including the non-shrinking
// prefix memory. Call it on every final event and on any language change.
func (s *Stabilizer) Reset() {
	s.details = nil
	s.history = nil
	s.lastInterim = ""
	s.lastPrefix = ""
	s.lastPrefixTokens = 0
}

// updateDetails matches each incoming token against the word-detail buffer,
// reinforcing matches and creating details for misses. It returns the detail
// backing each token position.
func (s *Stabilizer) updateDetails(tokens []string, at time.Time) []*wordDetail {
	tokenDetails := make([]*wordDetail, len(tokens))
	seen := make(map[*wordDetail]bool, len(tokens))

	for i, tok := range tokens {
		norm := normalizeToken(tok)
		if norm == "" {
			norm = strings.ToLower(tok)
		}

		var best *wordDetail
		var bestScore float64
		for _, d := range s.details {
			if seen[d] {
				continue
			}
			sim := wordSimilarity(norm, d.normalized)
			if sim <= wordMatchSimilarity {
				continue
			}
			combined := 0.7*sim + 0.3*positionProximity(i, d.bestPosition)
			if best == nil || combined > bestScore {
				best = d
				bestScore = combined
			}
		}

		if best != nil {
			best.stableCount++
			best.bestPosition = i
			best.positionHistory = append(best.positionHistory, i)
			if len(best.positionHistory) > positionHistoryCap {
				best.positionHistory = best.positionHistory[len(best.positionHistory)-positionHistoryCap:]
			}
			best.lastSeen = at
			best.word = tok
			seen[best] = true
			tokenDetails[i] = best
			continue
		}

		d := &wordDetail{
			word:            tok,
			normalized:      norm,
			stableCount:     newWordStability,
			firstSeen:       at,
			lastSeen:        at,
			bestPosition:    i,
			positionHistory: []int{i},
		}
		s.details = append(s.details, d)
		seen[d] = true
		tokenDetails[i] = d
	}

	return tokenDetails
}

// decay scales down details that were absent from the current interim and
// discards the ones that have faded out.
func (s *Stabilizer) decay(at time.Time, current []*wordDetail) {
	inUse := make(map[*wordDetail]bool, len(current))
	for _, d := range current {
		inUse[d] = true
	}

	kept := s.details[:0]
	for _, d := range s.details {
		if inUse[d] {
			kept = append(kept, d)
			continue
		}
		age := at.Sub(d.lastSeen)
		if age > decayGrace {
			factor := 1 - float64(age-decayGrace)/float64(decayRamp)
			if factor < decayFloor {
				factor = decayFloor
			}
			d.stableCount *= factor
			if d.stableCount < discardBelow {
				continue
			}
		}
		kept = append(kept, d)
	}
	s.details = kept
}

// tokenConfidences computes the per-token confidence for the configured
// heuristic. Scalar heuristics (PrefixRetention, EditDistance, WordDuration)
// apply one score to every token; token-wise heuristics vary by position.
func (s *Stabilizer) tokenConfidences(tokens []string, details []*wordDetail, prev string) []float64 {
	n := len(tokens)
	confs := make([]float64, n)

	switch s.heuristic {
	case HeuristicWordStability:
		for i := range tokens {
			confs[i] = details[i].confidence()
		}

	case HeuristicPrefixRetention:
		score := s.prefixRetention(tokens, prev)
		for i := range confs {
			confs[i] = score
		}

	case HeuristicEditDistance:
		score := s.editSimilarity(strings.Join(tokens, " "), prev)
		for i := range confs {
			confs[i] = score
		}

	case HeuristicWordDuration:
		score := s.wordDuration(details)
		for i := range confs {
			confs[i] = score
		}

	case HeuristicTrailingWordDecay:
		for i := range confs {
			confs[i] = float64(i+1) / float64(n)
		}

	case HeuristicHybrid:
		pr := s.prefixRetention(tokens, prev)
		ed := s.editSimilarity(strings.Join(tokens, " "), prev)
		for i := range confs {
			twd := float64(i+1) / float64(n)
			confs[i] = clamp01(0.4*details[i].confidence() + 0.3*pr + 0.2*ed + 0.1*twd)
		}
	}

	return confs
}

// prefixRetention is the rune length of the longest common prefix with the
// previous interim, normalized by the current interim's length.
func (s *Stabilizer) prefixRetention(tokens []string, prev string) float64 {
	sep := " "
	if s.cjk {
		sep = ""
	}
	cur := strings.Join(tokens, sep)
	if cur == "" || prev == "" {
		return 0
	}
	return float64(commonPrefixLen(cur, prev)) / float64(len([]rune(cur)))
}

// editSimilarity is 1 − levenshtein(cur, prev) / max(len, 1).
func (s *Stabilizer) editSimilarity(cur, prev string) float64 {
	if prev == "" {
		return 0
	}
	maxLen := len([]rune(cur))
	if l := len([]rune(prev)); l > maxLen {
		maxLen = l
	}
	if maxLen < 1 {
		maxLen = 1
	}
	dist := matchr.Levenshtein(cur, prev)
	return clamp01(1 - float64(dist)/float64(maxLen))
}

// wordDuration is the stability-weighted average presence duration of the
// current tokens, saturating at [maxWordDuration].
func (s *Stabilizer) wordDuration(details []*wordDetail) float64 {
	var weighted, weights float64
	for _, d := range details {
		weighted += d.lastSeen.Sub(d.firstSeen).Seconds() * d.stableCount
		weights += d.stableCount
	}
	if weights == 0 {
		return 0
	}
	return clamp01((weighted / weights) / maxWordDuration.Seconds())
}

// positionProximity scores how close position i is to a detail's last best
// position, reaching zero at [positionProximityRange] tokens apart.
func positionProximity(i, best int) float64 {
	diff := float64(i - best)
	if diff < 0 {
		diff = -diff
	}
	p := 1 - diff/positionProximityRange
	if p < 0 {
		return 0
	}
	return p
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
