package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/finalstream/pkg/format"
)

// recordingTransport captures written messages and can be told to fail.
type recordingTransport struct {
	mu      sync.Mutex
	written []string
	failAt  int // 1-based write index that fails; 0 = never
	block   chan struct{}
	err     error
}

func (r *recordingTransport) Write(ctx context.Context, msg format.Message) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && len(r.written)+1 == r.failAt {
		if r.err == nil {
			r.err = errors.New("connection reset")
		}
		return r.err
	}
	r.written = append(r.written, msg.Text)
	return nil
}

func (r *recordingTransport) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.written...)
}

func tokenMsg(s string) format.Message {
	return format.Message{Type: format.MessageTypeToken, Text: s}
}

func TestDispatcher_PreservesOrder(t *testing.T) {
	tr := &recordingTransport{}
	d := NewDispatcher(context.Background(), tr, DispatcherOptions{QueueSize: 4})

	var want []string
	for i := 0; i < 100; i++ {
		s := string(rune('a' + i%26))
		want = append(want, s)
		require.NoError(t, d.Send(context.Background(), tokenMsg(s)))
	}
	require.NoError(t, d.Close())
	assert.Equal(t, want, tr.texts())
}

func TestDispatcher_Flush(t *testing.T) {
	tr := &recordingTransport{}
	d := NewDispatcher(context.Background(), tr, DispatcherOptions{})
	t.Cleanup(func() { _ = d.Close() })

	require.NoError(t, d.Send(context.Background(), tokenMsg("one")))
	require.NoError(t, d.Send(context.Background(), tokenMsg("two")))
	require.NoError(t, d.Flush(context.Background()))
	assert.Equal(t, []string{"one", "two"}, tr.texts())
}

func TestDispatcher_SendDoesNotWaitForWrite(t *testing.T) {
	tr := &recordingTransport{block: make(chan struct{})}
	d := NewDispatcher(context.Background(), tr, DispatcherOptions{QueueSize: 8})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			assert.NoError(t, d.Send(context.Background(), tokenMsg("x")))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked on a stalled transport")
	}

	close(tr.block)
	require.NoError(t, d.Close())
	assert.Len(t, tr.texts(), 5)
}

func TestDispatcher_FailureClosesSink(t *testing.T) {
	tr := &recordingTransport{failAt: 2}
	d := NewDispatcher(context.Background(), tr, DispatcherOptions{})

	require.NoError(t, d.Send(context.Background(), tokenMsg("ok")))
	require.NoError(t, d.Send(context.Background(), tokenMsg("boom")))

	err := d.Flush(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClosed)

	err = d.Send(context.Background(), tokenMsg("after"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorContains(t, err, "connection reset")

	assert.ErrorIs(t, d.Close(), ErrClosed)
	assert.Equal(t, []string{"ok"}, tr.texts())
}

func TestDispatcher_ContextCancelClosesSink(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := &recordingTransport{}
	d := NewDispatcher(ctx, tr, DispatcherOptions{})

	cancel()
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}

	err := d.Send(context.Background(), tokenMsg("late"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDispatcher_SendAfterClose(t *testing.T) {
	d := NewDispatcher(context.Background(), &recordingTransport{}, DispatcherOptions{})
	require.NoError(t, d.Close())
	require.NoError(t, d.Close(), "Close is idempotent")

	assert.ErrorIs(t, d.Send(context.Background(), tokenMsg("x")), ErrClosed)
}

func TestDispatcher_AcceptedSendsSurviveConcurrentClose(t *testing.T) {
	for i := 0; i < 200; i++ {
		tr := &recordingTransport{}
		d := NewDispatcher(context.Background(), tr, DispatcherOptions{QueueSize: 64})

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 0; n < 8; n++ {
					if d.Send(context.Background(), tokenMsg("x")) == nil {
						mu.Lock()
						accepted++
						mu.Unlock()
					}
				}
			}()
		}
		require.NoError(t, d.Close())
		wg.Wait()

		assert.Len(t, tr.texts(), accepted, "iteration %d", i)
	}
}

func TestDispatcher_SendHonoursContextWhenFull(t *testing.T) {
	tr := &recordingTransport{block: make(chan struct{})}
	d := NewDispatcher(context.Background(), tr, DispatcherOptions{QueueSize: 1})
	t.Cleanup(func() {
		close(tr.block)
		_ = d.Close()
	})

	// One message is picked up by the writer and blocks, one fills the queue.
	require.NoError(t, d.Send(context.Background(), tokenMsg("a")))
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, d.Send(context.Background(), tokenMsg("b")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Send(ctx, tokenMsg("c")), context.DeadlineExceeded)
}
