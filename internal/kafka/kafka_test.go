package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestProducer_FlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, 8, logger.FromZap(zaptest.NewLogger(t)))
	p.Start()

	require.NoError(t, p.Publish([]byte("k1"), []byte("v1")))
	require.NoError(t, p.Publish([]byte("k2"), []byte("v2")))
	p.Close()
	p.WaitClosed()

	assert.Len(t, w.msgs, 2)
	assert.True(t, w.closed)
}

func TestProducer_FullInbox(t *testing.T) {
	p := NewProducerWithWriter(&fakeWriter{}, 1, logger.NewNop())

	require.NoError(t, p.Publish([]byte("k"), []byte("v")))
	err := p.Publish([]byte("k"), []byte("v"))

	assert.True(t, errors.Is(err, ErrProducerFull))
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumer_CommitsOnlySuccessful(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}}}
	c := NewConsumerWithReader(r, 1, logger.FromZap(zaptest.NewLogger(t)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(_ context.Context, m kafka.Message) error {
			if m.Offset == 2 {
				return errors.New("boom")
			}
			return nil
		})
	}()

	assert.Eventually(t, func() bool { return len(r.committedOffsets()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.ElementsMatch(t, []int64{1, 3}, r.committedOffsets())
}

func TestUnwrapPayload(t *testing.T) {
	type payload struct {
		OrderID string `json:"order_id"`
	}

	got, err := UnwrapPayload[payload](json.RawMessage(MustMarshal(payload{OrderID: "o1"})))
	require.NoError(t, err)
	assert.Equal(t, "o1", got.OrderID)

	_, err = UnwrapPayload[payload](json.RawMessage(`{"order_id":`))
	assert.Error(t, err)
}
