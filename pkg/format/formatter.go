// Package format turns raw tokens and supporting records into messages for
// a specific transport kind.
//
// Token content is never trimmed or re-encoded: the only change a token
// goes through is the envelope its transport requires.
package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"
)

// Kind identifies a transport family.
type Kind string

const (
	// KindPushStream is a server-sent-events stream of plain text chunks.
	KindPushStream Kind = "push_stream"
	// KindSocket is a bidirectional websocket carrying one object per frame.
	KindSocket Kind = "socket"
	// KindJSONStream is a structured stream of {"token": ...} objects.
	KindJSONStream Kind = "json_stream"
)

// Kinds lists every supported transport kind.
var Kinds = []Kind{KindPushStream, KindSocket, KindJSONStream}

// IsValid reports whether k is a known transport kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindPushStream, KindSocket, KindJSONStream:
		return true
	}
	return false
}

// MessageType distinguishes answer tokens from terminal records.
type MessageType string

const (
	MessageTypeToken  MessageType = "token"
	MessageTypeHeader MessageType = "header"
	MessageTypeRecord MessageType = "record"
	// MessageTypeEvent carries connection-level notices (run completed,
	// errors) that share the ordered channel with answer tokens.
	MessageTypeEvent MessageType = "event"
)

// Message is one formatted unit ready for dispatch. Text is the rendered
// text; Body, when set, is the structured object the transport serializes
// instead of Text.
type Message struct {
	Type MessageType
	Text string
	Body any
}

// Payload returns the bytes a transport writes for this message: the JSON
// encoding of Body when present, otherwise Text.
func (m Message) Payload() ([]byte, error) {
	if m.Body == nil {
		return []byte(m.Text), nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// Tokens such as "<" or "&" stay as they are on the wire.
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m.Body); err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", m.Type, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// TokenEnvelope is the structured-JSON stream object. More fields may be
// added later without breaking clients that only read Token.
type TokenEnvelope struct {
	Token string `json:"token"`
}

// SocketFrame is the object sent per websocket frame.
type SocketFrame struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Socket frame types.
const (
	SocketFrameStream = "stream"
	SocketFrameRecord = "record"
)

// DefaultRecordTemplate renders a record as its metadata block.
const DefaultRecordTemplate = "\nproduct_data: {{.Metadata}}\n"

// DefaultRecordHeader precedes the records on the push stream.
const DefaultRecordHeader = "\n\nSOURCE DOCUMENTS:\n"

// Options configure a Formatter.
type Options struct {
	// RecordTemplate is a text/template executed with .PageContent and
	// .Metadata (the rendered "key: value" block). Empty means
	// DefaultRecordTemplate.
	RecordTemplate string
	// RecordHeader is emitted once before the records of a run. Empty
	// means no header.
	RecordHeader string
}

// Formatter builds messages for one transport kind.
type Formatter struct {
	kind   Kind
	tmpl   *template.Template
	header string
}

// recordView is the data the record template sees.
type recordView struct {
	PageContent string
	Metadata    string
}

// ParseRecordTemplate compiles a record template.
func ParseRecordTemplate(text string) (*template.Template, error) {
	if text == "" {
		text = DefaultRecordTemplate
	}
	tmpl, err := template.New("record").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid record template: %w", err)
	}
	return tmpl, nil
}

// NewFormatter returns a Formatter for kind.
func NewFormatter(kind Kind, opts Options) (*Formatter, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("unknown transport kind %q", kind)
	}
	tmpl, err := ParseRecordTemplate(opts.RecordTemplate)
	if err != nil {
		return nil, err
	}
	return &Formatter{kind: kind, tmpl: tmpl, header: opts.RecordHeader}, nil
}

// Kind returns the transport kind the formatter targets.
func (f *Formatter) Kind() Kind {
	return f.kind
}

// FormatToken wraps a raw token for the transport.
func (f *Formatter) FormatToken(token string) Message {
	return f.wrap(MessageTypeToken, token)
}

// FormatRecordHeader returns the header that precedes the records, and
// false when none is configured.
func (f *Formatter) FormatRecordHeader() (Message, bool) {
	if f.header == "" {
		return Message{}, false
	}
	return f.wrap(MessageTypeHeader, f.header), true
}

// FormatRecord renders one supporting record through the record template.
func (f *Formatter) FormatRecord(rec Record) (Message, error) {
	var buf bytes.Buffer
	err := f.tmpl.Execute(&buf, recordView{
		PageContent: rec.PageContent,
		Metadata:    RenderMetadata(rec.Metadata),
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to render record: %w", err)
	}
	return f.wrap(MessageTypeRecord, buf.String()), nil
}

func (f *Formatter) wrap(typ MessageType, text string) Message {
	msg := Message{Type: typ, Text: text}
	switch f.kind {
	case KindSocket:
		frameType := SocketFrameStream
		if typ == MessageTypeRecord {
			frameType = SocketFrameRecord
		}
		msg.Body = SocketFrame{Sender: "bot", Message: text, Type: frameType}
	case KindJSONStream:
		msg.Body = TokenEnvelope{Token: text}
	}
	return msg
}
