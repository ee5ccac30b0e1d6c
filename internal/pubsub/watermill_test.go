package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) handle(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *collector) get() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

func TestWatermillBridge_DeliversInOrder(t *testing.T) {
	bus := NewWatermillBridge()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	require.NoError(t, bus.Subscribe(ctx, "chat.messages", c.handle))

	for i := range 20 {
		err := bus.Publish(ctx, Message{
			Topic:    "chat.messages",
			Payload:  []byte(fmt.Sprintf("%d", i)),
			Metadata: map[string]string{"conversation_id": "c1"},
		})
		require.NoError(t, err)
	}

	got := c.get()
	require.Len(t, got, 20)
	for i, msg := range got {
		assert.Equal(t, fmt.Sprintf("%d", i), string(msg.Payload))
		assert.Equal(t, "chat.messages", msg.Topic)
		assert.Equal(t, "c1", msg.Metadata["conversation_id"])
	}
}

func TestWatermillBridge_HandlerErrorDoesNotRedeliver(t *testing.T) {
	bus := NewWatermillBridge()
	defer bus.Close()

	var mu sync.Mutex
	calls := 0
	require.NoError(t, bus.Subscribe(context.Background(), "t", func(context.Context, Message) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("boom")
	}))

	require.NoError(t, bus.Publish(context.Background(), Message{Topic: "t", Payload: []byte("x")}))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestTypedEvent(t *testing.T) {
	type change struct {
		ConversationID string `json:"conversationId"`
	}
	event := NewEvent[change]("chat.conversations")

	bus := NewWatermillBridge()
	defer bus.Close()

	got := make(chan change, 1)
	require.NoError(t, Subscribe(context.Background(), bus, event, func(_ context.Context, c change) error {
		got <- c
		return nil
	}))
	require.NoError(t, Publish(context.Background(), bus, event, change{ConversationID: "c7"}))

	select {
	case c := <-got:
		assert.Equal(t, "c7", c.ConversationID)
	case <-time.After(time.Second):
		t.Fatal("typed event not delivered")
	}
}

func TestSetupTracing_Disabled(t *testing.T) {
	tracer, shutdown, err := SetupTracing(context.Background(), TracingConfig{})
	require.NoError(t, err)
	require.NotNil(t, tracer)
	assert.NoError(t, shutdown(context.Background()))

	bus := NewWatermillBridge(WithTracer(tracer))
	assert.NoError(t, bus.Close())
	assert.NoError(t, bus.Close())
}
