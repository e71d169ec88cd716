package session

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/finalstream/pkg/callback"
	"github.com/codeready-toolchain/finalstream/pkg/config"
	"github.com/codeready-toolchain/finalstream/pkg/detector"
	"github.com/codeready-toolchain/finalstream/pkg/llm"
)

// scriptedModel streams fixed chunks.
type scriptedModel struct {
	chunks []string
	err    error
}

func (m *scriptedModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(strings.Join(m.chunks, ""), nil), nil
}

func (m *scriptedModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if m.err != nil {
		return nil, m.err
	}
	msgs := make([]*schema.Message, 0, len(m.chunks))
	for _, c := range m.chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

// answerChunks is a scripted answer ending in "Final Answer: Berlin."
var answerChunks = []string{"Let", " me", " think", ".", "\n", "Final", " Answer", ":", " Berlin", "."}

func newTestGenerator(t *testing.T, cm model.BaseChatModel) *llm.Generator {
	t.Helper()
	g, err := llm.NewGenerator(context.Background(), cm, "")
	require.NoError(t, err)
	return g
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Detector.Marker = detector.PlainMarker()
	return cfg
}

// reportLog collects run reports.
type reportLog struct {
	mu      sync.Mutex
	reports []callback.RunReport
}

func (l *reportLog) Report(_ context.Context, r callback.RunReport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = append(l.reports, r)
}

func (l *reportLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.reports)
}
