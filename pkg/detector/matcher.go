// Package detector finds the point in a token stream where the final answer
// begins.
//
// A Matcher keeps a fixed-length trailing window of the most recent raw
// tokens and compares it against a configured marker sequence. A Detector
// wraps the matcher with the per-run lifecycle:
//
//	Reset() → Armed ──(window == marker)──▶ Triggered ──Reset()──▶ Armed
//
// The token that completes the marker is part of the marker and is never
// forwarded. Every token after it is.
package detector

// Matcher compares a trailing window of tokens against a marker sequence.
//
// The window always holds exactly len(marker) entries. It is pre-filled with
// empty placeholders, so a marker that itself contains empty strings can
// match before len(marker) real tokens have been seen. That mirrors how the
// window is reset and is covered by tests.
//
// A Matcher is not safe for concurrent use.
type Matcher struct {
	marker []string
	window []string
	// next is the ring index of the oldest entry.
	next int
}

// NewMatcher returns a Matcher for the given marker. The marker is copied.
// An empty marker produces a matcher that reports a match immediately.
func NewMatcher(marker []string) *Matcher {
	m := &Matcher{
		marker: append([]string(nil), marker...),
		window: make([]string, len(marker)),
	}
	return m
}

// Feed appends token to the window, evicting the oldest entry, and reports
// whether the window now equals the marker element for element.
func (m *Matcher) Feed(token string) bool {
	if len(m.marker) == 0 {
		return true
	}
	m.window[m.next] = token
	m.next = (m.next + 1) % len(m.window)
	return m.Matched()
}

// Matched reports whether the current window equals the marker. It is
// always true for an empty marker.
func (m *Matcher) Matched() bool {
	n := len(m.marker)
	for i := 0; i < n; i++ {
		if m.window[(m.next+i)%n] != m.marker[i] {
			return false
		}
	}
	return true
}

// Reset clears the window back to empty placeholders.
func (m *Matcher) Reset() {
	for i := range m.window {
		m.window[i] = ""
	}
	m.next = 0
}

// Window returns a copy of the window, oldest token first.
func (m *Matcher) Window() []string {
	n := len(m.window)
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = m.window[(m.next+i)%n]
	}
	return out
}

// Marker returns a copy of the marker sequence.
func (m *Matcher) Marker() []string {
	return append([]string(nil), m.marker...)
}
