package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-contrib/sse"

	"github.com/codeready-toolchain/finalstream/pkg/format"
)

// PushStream writes messages as server-sent events. The event name is the
// message type ("token", "header", "record", "event"). The data is always
// one line of JSON: a string for text messages, the body object for
// structured ones. SSE clients strip a leading space from data and treat
// CR as a line break, so raw text could not carry every token unchanged.
type PushStream struct {
	w io.Writer
}

// NewPushStream returns a PushStream writing to w. The caller must have set
// the text/event-stream headers. If w implements http.Flusher every event
// is flushed immediately.
func NewPushStream(w io.Writer) *PushStream {
	return &PushStream{w: w}
}

// Write encodes one event.
func (p *PushStream) Write(ctx context.Context, msg format.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := eventData(msg)
	if err != nil {
		return err
	}
	if err := sse.Encode(p.w, sse.Event{Event: string(msg.Type), Data: string(payload)}); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	flush(p.w)
	return nil
}

// eventData returns msg as single-line JSON.
func eventData(msg format.Message) ([]byte, error) {
	if msg.Body != nil {
		return msg.Payload()
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg.Text); err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", msg.Type, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// JSONStream writes newline-delimited JSON: one object per line. Messages
// without a structured body are rejected.
type JSONStream struct {
	w io.Writer
}

// NewJSONStream returns a JSONStream writing to w.
func NewJSONStream(w io.Writer) *JSONStream {
	return &JSONStream{w: w}
}

// Write encodes one line.
func (j *JSONStream) Write(ctx context.Context, msg format.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.Body == nil {
		return fmt.Errorf("json stream: %s message has no structured body", msg.Type)
	}
	payload, err := msg.Payload()
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	if _, err := j.w.Write(payload); err != nil {
		return fmt.Errorf("failed to write line: %w", err)
	}
	flush(j.w)
	return nil
}

func flush(w io.Writer) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
