package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/fragrance-etl/internal/config"
)

// queueReader serves queued messages, then blocks until cancelled.
type queueReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *queueReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
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

func (r *queueReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *queueReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *queueReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func testConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers: []string{"localhost:9092"},
		GroupID: "fragetl-worker",
		Topics:  []string{TopicImportRequested},
		RetryConfig: RetryConfig{
			RetryBackoff: time.Millisecond,
		},
	}
}

func TestValidateConsumerConfig(t *testing.T) {
	cfg := testConsumerConfig()
	assert.NoError(t, ValidateConsumerConfig(cfg))

	noGroup := cfg
	noGroup.GroupID = ""
	assert.Error(t, ValidateConsumerConfig(noGroup))

	noTopics := cfg
	noTopics.Topics = nil
	assert.Error(t, ValidateConsumerConfig(noTopics))

	noBrokers := cfg
	noBrokers.Brokers = nil
	assert.Error(t, ValidateConsumerConfig(noBrokers))
}

func TestConsumerConfigFrom(t *testing.T) {
	cfg := ConsumerConfigFrom(config.KafkaConfig{
		Brokers: []string{"k:9092"}, GroupID: "g", ImportRequestedTopic: "imports",
	})
	assert.Equal(t, []string{"imports"}, cfg.Topics)
	assert.Equal(t, "imports.dead_letter", cfg.RetryConfig.DeadLetterTopic)
}

func TestConsumer_DispatchesAndCommits(t *testing.T) {
	reader := &queueReader{queue: []kafka.Message{
		{Topic: TopicImportRequested, Offset: 1, Value: []byte("a"), Headers: []kafka.Header{{Key: "h", Value: []byte("v")}}},
		{Topic: "unknown.topic", Offset: 2, Value: []byte("b")},
		{Topic: TopicImportRequested, Offset: 3, Value: []byte("c")},
	}}
	c := newConsumer(reader, testConsumerConfig(), nil, nil)

	var got []string
	var mu sync.Mutex
	c.Subscribe(TopicImportRequested, func(_ context.Context, msg *Message) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(msg.Value))
		if msg.Offset == 1 {
			assert.Equal(t, "v", msg.Headers["h"])
		}
		return nil
	})

	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyRunning)

	assert.Eventually(t, func() bool { return len(reader.commits()) == 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	assert.Equal(t, []string{"a", "c"}, got)
	assert.Equal(t, []int64{1, 2, 3}, reader.commits())
	assert.Equal(t, int64(2), c.Processed())
	assert.True(t, reader.closed)
}

func TestProcessMessage_RetriesThenSucceeds(t *testing.T) {
	cfg := testConsumerConfig()
	cfg.RetryConfig.MaxRetries = 3
	c := newConsumer(&queueReader{}, cfg, nil, nil)

	var calls int32
	err := c.processMessage(context.Background(), &Message{Topic: "t"}, func(context.Context, *Message) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, int32(3), calls)
	assert.Equal(t, int64(2), c.metrics.MessagesRetried.Load())
}

func TestProcessMessage_DeadLetters(t *testing.T) {
	cfg := testConsumerConfig()
	cfg.RetryConfig.MaxRetries = 1
	cfg.RetryConfig.DeadLetterTopic = DeadLetterTopic(TopicImportRequested)

	w := &mockKafkaWriter{}
	dl := newTestProducer(w)
	c := newConsumer(&queueReader{}, cfg, dl, nil)

	msg := &Message{Topic: TopicImportRequested, Key: []byte("k"), Value: []byte(`{"bad":`), Headers: map[string]string{}}
	err := c.processMessage(context.Background(), msg, func(context.Context, *Message) error {
		return errors.New("malformed request")
	})
	assert.Error(t, err)

	written := w.messages()
	require.Len(t, written, 1)
	assert.Equal(t, "catalog.import.requested.dead_letter", written[0].Topic)
	headers := map[string]string{}
	for _, h := range written[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, TopicImportRequested, headers["original_topic"])
	assert.Equal(t, "malformed request", headers["error_message"])
	assert.Empty(t, msg.Headers, "original headers untouched")
	assert.Equal(t, int64(1), c.metrics.MessagesDeadLettered.Load())
}

func TestProcessMessage_CancelledDuringBackoff(t *testing.T) {
	cfg := testConsumerConfig()
	cfg.RetryConfig.MaxRetries = 5
	cfg.RetryConfig.RetryBackoff = time.Hour
	c := newConsumer(&queueReader{}, cfg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.processMessage(ctx, &Message{}, func(context.Context, *Message) error { return errors.New("x") })
	assert.ErrorIs(t, err, context.Canceled)
}
