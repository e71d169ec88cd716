package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/codeready-toolchain/finalstream/pkg/format"
)

// ChannelPrefix prefixes the Redis channel a connection is mirrored to.
const ChannelPrefix = "finalstream:"

// Channel returns the Redis channel for a connection id.
func Channel(connectionID string) string {
	return ChannelPrefix + connectionID
}

// Publisher is the subset of *redis.Client used by Fanout.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// FanoutEnvelope is what Fanout publishes: the message type plus the
// payload the primary transport sent.
type FanoutEnvelope struct {
	Type    format.MessageType `json:"type"`
	Payload string             `json:"payload"`
}

// Fanout mirrors messages to a Redis pub/sub channel so other replicas can
// follow a connection's answer.
type Fanout struct {
	pub     Publisher
	channel string
}

// NewFanout returns a Fanout publishing to channel.
func NewFanout(pub Publisher, channel string) *Fanout {
	return &Fanout{pub: pub, channel: channel}
}

// Write publishes one envelope.
func (f *Fanout) Write(ctx context.Context, msg format.Message) error {
	payload, err := msg.Payload()
	if err != nil {
		return err
	}
	data, err := json.Marshal(FanoutEnvelope{Type: msg.Type, Payload: string(payload)})
	if err != nil {
		return fmt.Errorf("failed to marshal fanout envelope: %w", err)
	}
	if err := f.pub.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", f.channel, err)
	}
	return nil
}

// Multi writes to a primary transport and best-effort mirrors. Only a
// primary failure is returned; mirror failures are logged.
type Multi struct {
	primary Transport
	mirrors []Transport
}

// NewMulti combines a primary transport with mirrors. Nil mirrors are
// skipped.
func NewMulti(primary Transport, mirrors ...Transport) *Multi {
	m := &Multi{primary: primary}
	for _, t := range mirrors {
		if t != nil {
			m.mirrors = append(m.mirrors, t)
		}
	}
	return m
}

// Write delivers msg to the primary first, then to each mirror.
func (m *Multi) Write(ctx context.Context, msg format.Message) error {
	if err := m.primary.Write(ctx, msg); err != nil {
		return err
	}
	for _, t := range m.mirrors {
		if err := t.Write(ctx, msg); err != nil {
			slog.Warn("Mirror transport write failed", "type", msg.Type, "error", err)
		}
	}
	return nil
}
