package conversation

// Entry is a single line of the per-user conversation log. An utterance keeps
// one Entry for its whole lifetime: interim refinements update the entry in
// place and the closing final promotes it, so the ID stays stable across
// updates.
type Entry struct {
	// ID identifies the utterance. IDs are monotonic within a user
	// ("entry-1", "entry-2", …) and never reused while a viewer is connected.
	ID string `json:"id"`

	// Timestamp is the last update time in Unix epoch milliseconds.
	Timestamp int64 `json:"timestamp"`

	// OriginalText is the source-language text as heard.
	OriginalText string `json:"originalText"`

	// TranslatedText is the target-language rendition.
	TranslatedText string `json:"translatedText"`

	// OriginalLanguage and TranslatedLanguage are the detected languages of
	// the two texts, as reported by the upstream event.
	OriginalLanguage   string `json:"originalLanguage"`
	TranslatedLanguage string `json:"translatedLanguage"`

	// IsFinal reports whether the utterance has been closed. Once true it
	// never reverts to false for the same ID.
	IsFinal bool `json:"isFinal"`

	// IsNewUtterance is true on the event that closed the utterance (or on a
	// standalone final), signalling viewers to start a fresh line afterwards.
	IsNewUtterance bool `json:"isNewUtterance"`
}

// LanguagePair is the (from, to) language configuration the log is currently
// operating under.
type LanguagePair struct {
	From string `json:"from"`
	To   string `json:"to"`
}
