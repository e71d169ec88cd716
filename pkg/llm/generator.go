package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/codeready-toolchain/finalstream/pkg/format"
)

// Graph node keys.
const (
	NodeQuery     = "query"
	NodeRetriever = "retriever"
	NodePrompt    = "prompt"
	NodeChatModel = "chat_model"
)

// ErrEmptyPrompt is returned for a request without a prompt.
var ErrEmptyPrompt = errors.New("prompt is required")

// Request is one question plus the documents the answer may draw on.
type Request struct {
	Prompt    string          `json:"prompt" binding:"required"`
	Documents []format.Record `json:"documents,omitempty"`
}

// Validate checks the request.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrEmptyPrompt
	}
	return nil
}

// state is the graph local state of one run.
type state struct {
	Request *Request
}

// Generator runs the answer graph: the query node stores the request, the
// retriever returns its documents, the prompt node renders the messages
// and the chat model streams the answer.
type Generator struct {
	runnable compose.Runnable[*Request, *schema.Message]
}

// NewGenerator compiles the answer graph around cm.
func NewGenerator(ctx context.Context, cm model.BaseChatModel, systemPrompt string) (*Generator, error) {
	if cm == nil {
		return nil, errors.New("chat model is nil")
	}

	g := compose.NewGraph[*Request, *schema.Message](
		compose.WithGenLocalState(func(context.Context) *state { return &state{} }),
	)

	if err := g.AddLambdaNode(NodeQuery, compose.InvokableLambda(queryNode)); err != nil {
		return nil, fmt.Errorf("failed to add %s node: %w", NodeQuery, err)
	}
	if err := g.AddRetrieverNode(NodeRetriever, &requestRetriever{}); err != nil {
		return nil, fmt.Errorf("failed to add %s node: %w", NodeRetriever, err)
	}
	if err := g.AddLambdaNode(NodePrompt, compose.InvokableLambda(promptNode(systemPrompt))); err != nil {
		return nil, fmt.Errorf("failed to add %s node: %w", NodePrompt, err)
	}
	if err := g.AddChatModelNode(NodeChatModel, cm); err != nil {
		return nil, fmt.Errorf("failed to add %s node: %w", NodeChatModel, err)
	}

	edges := [][2]string{
		{compose.START, NodeQuery},
		{NodeQuery, NodeRetriever},
		{NodeRetriever, NodePrompt},
		{NodePrompt, NodeChatModel},
		{NodeChatModel, compose.END},
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return nil, fmt.Errorf("failed to add edge %s -> %s: %w", e[0], e[1], err)
		}
	}

	runnable, err := g.Compile(ctx, compose.WithGraphName("finalstream_answer"))
	if err != nil {
		return nil, fmt.Errorf("failed to compile answer graph: %w", err)
	}
	return &Generator{runnable: runnable}, nil
}

// Stream runs the graph in streaming mode and drains the answer. Tokens
// reach the caller only through the callback handlers, which observe the
// model stream as it is produced.
func (g *Generator) Stream(ctx context.Context, req *Request, handlers ...callbacks.Handler) error {
	if err := req.Validate(); err != nil {
		return err
	}
	sr, err := g.runnable.Stream(ctx, req, compose.WithCallbacks(handlers...))
	if err != nil {
		return fmt.Errorf("failed to start answer stream: %w", err)
	}
	defer sr.Close()
	for {
		_, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("answer stream failed: %w", err)
		}
	}
}

func queryNode(ctx context.Context, req *Request) (string, error) {
	err := compose.ProcessState(ctx, func(_ context.Context, s *state) error {
		s.Request = req
		return nil
	})
	if err != nil {
		return "", err
	}
	return req.Prompt, nil
}

func promptNode(systemPrompt string) func(context.Context, []*schema.Document) ([]*schema.Message, error) {
	return func(ctx context.Context, docs []*schema.Document) ([]*schema.Message, error) {
		var question string
		err := compose.ProcessState(ctx, func(_ context.Context, s *state) error {
			if s.Request != nil {
				question = s.Request.Prompt
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		var user strings.Builder
		if len(docs) > 0 {
			user.WriteString("Context:\n")
			for i, d := range docs {
				fmt.Fprintf(&user, "[%d] %s\n", i+1, d.Content)
			}
			user.WriteString("\n")
		}
		user.WriteString("Question: ")
		user.WriteString(question)

		msgs := make([]*schema.Message, 0, 2)
		if systemPrompt != "" {
			msgs = append(msgs, schema.SystemMessage(systemPrompt))
		}
		return append(msgs, schema.UserMessage(user.String())), nil
	}
}

// requestRetriever returns the documents sent with the request.
type requestRetriever struct{}

func (r *requestRetriever) Retrieve(ctx context.Context, _ string, _ ...retriever.Option) ([]*schema.Document, error) {
	var docs []*schema.Document
	err := compose.ProcessState(ctx, func(_ context.Context, s *state) error {
		if s.Request != nil {
			docs = RecordsToDocuments(s.Request.Documents)
		}
		return nil
	})
	return docs, err
}

// RecordsToDocuments converts request records to eino documents. Document
// ids are their 1-based position; metadata key order travels with the
// document (see format.MetadataToMap).
func RecordsToDocuments(records []format.Record) []*schema.Document {
	docs := make([]*schema.Document, 0, len(records))
	for i, rec := range records {
		docs = append(docs, &schema.Document{
			ID:       fmt.Sprint(i + 1),
			Content:  rec.PageContent,
			MetaData: format.MetadataToMap(rec.Metadata),
		})
	}
	return docs
}
