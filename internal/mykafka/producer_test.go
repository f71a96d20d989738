package mykafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducer_PublishEvent(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w}

	ev := OrderCreated{Type: EventOrderCreated, OrderID: 7, UserID: "u1", Status: "paid", Total: "199.98"}
	require.NoError(t, p.PublishEvent(context.Background(), TopicOrders, "u1", ev))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, TopicOrders, msg.Topic)
	assert.Equal(t, "u1", string(msg.Key))

	var got OrderCreated
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, uint(7), got.OrderID)
	assert.Equal(t, "199.98", got.Total)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducer_Errors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &Producer{writer: w}

	err := p.PublishEvent(context.Background(), TopicCart, "k", map[string]any{"type": EventCartCleared})
	require.ErrorContains(t, err, "broker down")

	err = p.PublishEvent(context.Background(), TopicCart, "k", map[string]any{"bad": make(chan int)})
	require.ErrorContains(t, err, "json.Marshal")
}

func TestNewProducer_CloseWithoutWrites(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"})
	require.NoError(t, p.Close())
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.PublishEvent(context.Background(), TopicOrders, "k", nil))
	assert.NoError(t, p.Close())
}
