package format

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFormatter_UnknownKind(t *testing.T) {
	_, err := NewFormatter(Kind("carrier_pigeon"), Options{})
	assert.Error(t, err)
}

func TestNewFormatter_BadTemplate(t *testing.T) {
	_, err := NewFormatter(KindPushStream, Options{RecordTemplate: "{{.Metadata"})
	assert.ErrorContains(t, err, "invalid record template")
}

func TestFormatToken(t *testing.T) {
	tests := []struct {
		kind    Kind
		token   string
		payload string
	}{
		{KindPushStream, " Hello\n", " Hello\n"},
		{KindSocket, " Hello\n", `{"sender":"bot","message":" Hello\n","type":"stream"}`},
		{KindJSONStream, " Hello\n", `{"token":" Hello\n"}`},
		{KindJSONStream, "", `{"token":""}`},
		{KindJSONStream, "<b>&", `{"token":"<b>&"}`},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			f, err := NewFormatter(tt.kind, Options{})
			require.NoError(t, err)

			msg := f.FormatToken(tt.token)
			assert.Equal(t, MessageTypeToken, msg.Type)
			assert.Equal(t, tt.token, msg.Text, "token text is never altered")

			payload, err := msg.Payload()
			require.NoError(t, err)
			assert.Equal(t, tt.payload, string(payload))
		})
	}
}

func TestFormatRecord_DefaultTemplate(t *testing.T) {
	f, err := NewFormatter(KindPushStream, Options{})
	require.NoError(t, err)

	msg, err := f.FormatRecord(Record{
		Metadata:    MetadataOf("name", "Laptop X", "price", 39900, "brand", "Acer"),
		PageContent: "ignored by the default template",
	})
	require.NoError(t, err)

	assert.Equal(t, MessageTypeRecord, msg.Type)
	assert.Equal(t, "\nproduct_data: name: Laptop X\nprice: 39900\nbrand: Acer\n", msg.Text)
}

func TestFormatRecord_CustomTemplate(t *testing.T) {
	f, err := NewFormatter(KindSocket, Options{
		RecordTemplate: "{{.PageContent}}\n---\n{{.Metadata}}",
	})
	require.NoError(t, err)

	msg, err := f.FormatRecord(Record{
		Metadata:    MetadataOf("source", "catalog.pdf", "page", 3),
		PageContent: "body",
	})
	require.NoError(t, err)

	payload, err := msg.Payload()
	require.NoError(t, err)
	var frame SocketFrame
	require.NoError(t, json.Unmarshal(payload, &frame))
	assert.Equal(t, SocketFrame{
		Sender:  "bot",
		Message: "body\n---\nsource: catalog.pdf\npage: 3",
		Type:    SocketFrameRecord,
	}, frame)
}

func TestFormatRecord_NoMetadata(t *testing.T) {
	f, err := NewFormatter(KindPushStream, Options{RecordTemplate: "[{{.Metadata}}]{{.PageContent}}"})
	require.NoError(t, err)

	msg, err := f.FormatRecord(Record{PageContent: "only body"})
	require.NoError(t, err)
	assert.Equal(t, "[]only body", msg.Text)
}

func TestFormatRecordHeader(t *testing.T) {
	f, err := NewFormatter(KindPushStream, Options{RecordHeader: DefaultRecordHeader})
	require.NoError(t, err)
	msg, ok := f.FormatRecordHeader()
	require.True(t, ok)
	assert.Equal(t, MessageTypeHeader, msg.Type)
	assert.Equal(t, DefaultRecordHeader, msg.Text)

	f, err = NewFormatter(KindSocket, Options{})
	require.NoError(t, err)
	_, ok = f.FormatRecordHeader()
	assert.False(t, ok)
}

func TestRecord_JSONKeepsMetadataOrder(t *testing.T) {
	raw := `{"metadata":{"z":1,"a":"two","m":true},"page_content":"text"}`

	var rec Record
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	assert.Equal(t, "z: 1\na: two\nm: true", RenderMetadata(rec.Metadata))
	assert.Equal(t, "text", rec.PageContent)
}

func TestKind_IsValid(t *testing.T) {
	for _, k := range Kinds {
		assert.True(t, k.IsValid(), k)
	}
	assert.False(t, Kind("").IsValid())
}

func TestMetadataOf_Panics(t *testing.T) {
	assert.Panics(t, func() { MetadataOf("only-key") })
	assert.Panics(t, func() { MetadataOf(1, "value") })
}

func TestMetadataMapRoundTrip(t *testing.T) {
	md := MetadataOf("sku", "T1", "name", "Sencha", "price", 3)

	m := MetadataToMap(md)
	assert.Equal(t, []string{"sku", "name", "price"}, m[KeyOrderField])
	assert.Equal(t, "sku: T1\nname: Sencha\nprice: 3", RenderMetadata(MetadataFromMap(m)))

	assert.Empty(t, MetadataToMap(nil))
}

func TestMetadataFromMap(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want string
	}{
		{name: "nil map", in: nil, want: ""},
		{name: "no order sorts keys", in: map[string]any{"b": 2, "a": 1}, want: "a: 1\nb: 2"},
		{
			name: "order decoded from JSON",
			in:   map[string]any{"b": 2, "a": 1, KeyOrderField: []any{"b", "a"}},
			want: "b: 2\na: 1",
		},
		{
			name: "keys outside the order follow sorted",
			in:   map[string]any{"z": 0, "y": 9, "b": 2, KeyOrderField: []string{"b", "gone"}},
			want: "b: 2\ny: 9\nz: 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderMetadata(MetadataFromMap(tt.in)))
		})
	}
}
