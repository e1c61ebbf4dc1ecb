package alarm

import (
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

// UnknownState is the state reported before the first state change arrives.
const UnknownState = "unknown"

// StateStore holds the last known alarm state. Last write wins; no history is kept.
type StateStore struct {
	// state is the decoded alarm state.
	state string
	// mu protects state against readers outside the event loop.
	mu sync.RWMutex
}

// NewStateStore creates a store initialized to UnknownState.
func NewStateStore() *StateStore {
	return &StateStore{
		state: UnknownState,
	}
}

// Set decodes the raw payload, replaces the stored state and returns the decoded value.
func (s *StateStore) Set(raw []byte) string {
	decoded := DecodeState(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = decoded

	return decoded
}

// Get returns the stored state.
func (s *StateStore) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// DecodeState turns a raw payload into text, interpreting backslash escape
// sequences written literally in the payload (\n, \t, \\, \x41, \u00e9, ...).
// Unknown escapes are kept as-is and bytes that are not valid UTF-8 are read
// as Latin-1, so decoding never fails.
func DecodeState(raw []byte) string {
	var builder strings.Builder

	builder.Grow(len(raw))

	text := toValidText(raw)

	for len(text) > 0 {
		if text[0] != '\\' || len(text) == 1 {
			r, size := utf8.DecodeRuneInString(text)
			builder.WriteRune(r)

			text = text[size:]

			continue
		}

		// Quote escapes are handled here because strconv.UnquoteChar only
		// accepts the escape matching its quote argument.
		if text[1] == '\'' || text[1] == '"' {
			builder.WriteByte(text[1])

			text = text[2:]

			continue
		}

		value, _, tail, err := strconv.UnquoteChar(text, 0)
		if err != nil {
			builder.WriteByte('\\')

			text = text[1:]

			continue
		}

		builder.WriteRune(value)

		text = tail
	}

	return builder.String()
}

// toValidText returns raw as a string, mapping invalid UTF-8 bytes to their Latin-1 runes.
func toValidText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}

	var builder strings.Builder

	builder.Grow(len(raw))

	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		if r == utf8.RuneError && size == 1 {
			r = rune(raw[0])
		}

		builder.WriteRune(r)

		raw = raw[size:]
	}

	return builder.String()
}
