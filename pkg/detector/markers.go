package detector

import "regexp"

// AgentMarker returns the marker a JSON-speaking agent emits right before
// the value of its final "action_input", as the tokens of
//
//	"Final Answer",
//	    "action_input": "
//
// It is the default marker.
func AgentMarker() []string {
	return []string{"Final", " Answer", "\",\n", "   ", " \"", "action", "_input", "\":", " \""}
}

// PlainMarker returns the marker for a plain-text "Final Answer:" line.
func PlainMarker() []string {
	return []string{"Final", " Answer", ":"}
}

var wordPattern = regexp.MustCompile(`[ \t]*(?:[\p{L}\p{N}_]+|[^\s\p{L}\p{N}_])|\s+`)

// SplitWords splits a text chunk into word tokens, each carrying its leading
// spaces, with every punctuation character and every run of whitespace that
// holds a line break on its own:
//
//	SplitWords("Final Answer: yes") == []string{"Final", " Answer", ":", " yes"}
//
// Joining the result gives back the input. Backends that stream multi-word
// chunks are split with it so that PlainMarker can match.
func SplitWords(chunk string) []string {
	return wordPattern.FindAllString(chunk, -1)
}
