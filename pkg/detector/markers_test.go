package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "Final Answer: yes", want: []string{"Final", " Answer", ":", " yes"}},
		{in: " Paris.\n", want: []string{" Paris", ".", "\n"}},
		{in: "a  ", want: []string{"a", "  "}},
		{in: "done.\nFinal", want: []string{"done", ".", "\n", "Final"}},
		{in: "x \n\t y", want: []string{"x", " \n\t ", "y"}},
		{in: "", want: nil},
		{in: "déjà vu", want: []string{"déjà", " vu"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := SplitWords(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, strings.Join(got, ""))
		})
	}
}

func TestPlainMarkerMatchesSplitText(t *testing.T) {
	d := New(PlainMarker())
	d.Reset()

	var forwarded []string
	for _, chunk := range []string{"Thought: done.\n", "Final Answer: forty", " two"} {
		for _, tok := range SplitWords(chunk) {
			out, err := d.Observe(tok)
			assert.NoError(t, err)
			if out.Forward() {
				forwarded = append(forwarded, tok)
			}
		}
	}
	assert.Equal(t, " forty two", strings.Join(forwarded, ""))
}

func TestMarkersAreCopies(t *testing.T) {
	m := AgentMarker()
	m[0] = "changed"
	assert.Equal(t, "Final", AgentMarker()[0])
	assert.Len(t, PlainMarker(), 3)
}
