package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/fragrance-etl/pkg/errors"
)

type mockKafkaConn struct {
	existing  map[string]bool
	created   []kafka.TopicConfig
	createErr error
}

func (m *mockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, topics...)
	return nil
}

func (m *mockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	if len(topics) == 1 && m.existing[topics[0]] {
		return []kafka.Partition{{Topic: topics[0]}}, nil
	}
	return nil, errors.New("unknown topic")
}

func (m *mockKafkaConn) Close() error { return nil }

func TestDefaultTopics(t *testing.T) {
	topics := DefaultTopics(TopicRunCompleted, TopicImportRequested, 0)
	require.Len(t, topics, 3)
	assert.Equal(t, "catalog.import.requested.dead_letter", topics[2].Name)
	for _, tc := range topics {
		assert.Equal(t, 1, tc.ReplicationFactor)
	}
}

func TestEnsureTopics_CreatesMissingOnly(t *testing.T) {
	conn := &mockKafkaConn{existing: map[string]bool{TopicRunCompleted: true}}
	m := &TopicManager{conn: conn, logger: logging.NewNopLogger()}

	require.NoError(t, m.EnsureTopics(context.Background(), DefaultTopics(TopicRunCompleted, TopicImportRequested, 3)))
	require.Len(t, conn.created, 2)
	assert.Equal(t, TopicImportRequested, conn.created[0].Topic)
	assert.Equal(t, 3, conn.created[0].ReplicationFactor)
	assert.Equal(t, "retention.ms", conn.created[0].ConfigEntries[0].ConfigName)
}

func TestEnsureTopics_Errors(t *testing.T) {
	m := &TopicManager{conn: &mockKafkaConn{createErr: errors.New("not controller")}, logger: logging.NewNopLogger()}
	err := m.EnsureTopics(context.Background(), []TopicConfig{{Name: "x", NumPartitions: 1, ReplicationFactor: 1}})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeEventPublish))

	err = m.EnsureTopics(context.Background(), []TopicConfig{{Name: "x"}})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEventEnvelope(TopicImportRequested, "fragctl", map[string]string{"source": "s3://catalog/in.csv"})
	require.NoError(t, err)
	env.TraceID = "trace-1"

	msg, err := env.ToMessage(TopicImportRequested)
	require.NoError(t, err)
	assert.Equal(t, "trace-1", msg.Headers["trace_id"])

	parsed, err := MessageToEventEnvelope(&Message{Value: msg.Value})
	require.NoError(t, err)
	var payload map[string]string
	require.NoError(t, parsed.DecodePayload(&payload))
	assert.Equal(t, "s3://catalog/in.csv", payload["source"])
}

func TestMessageToEventEnvelope_Invalid(t *testing.T) {
	_, err := MessageToEventEnvelope(&Message{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

	_, err = MessageToEventEnvelope(&Message{Value: []byte("{")})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSerialization))

	env := &EventEnvelope{Payload: []byte("null")}
	assert.Error(t, env.DecodePayload(&struct{}{}))
}
