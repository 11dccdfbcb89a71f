package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/tabula/internal/config"
)

func TestFromKafkaCopiesHeaders(t *testing.T) {
	key := []byte("order:o1")
	msg := fromKafka(kafka.Message{
		Topic:  "records.changes",
		Key:    key,
		Value:  []byte(`{}`),
		Offset: 7,
		Headers: []kafka.Header{
			{Key: EventHeader, Value: []byte("record.saved")},
		},
	})
	key[0] = 'X'

	assert.Equal(t, "order:o1", string(msg.Key))
	assert.Equal(t, int64(7), msg.Offset)
	assert.Equal(t, "record.saved", msg.Header(EventHeader))
	assert.Empty(t, Message{}.Header(EventHeader))
}

func TestDisabledMessagingIsNoop(t *testing.T) {
	cfg := config.Config{Messaging: config.Messaging{
		Driver: "noop",
		Kafka:  config.Kafka{Topic: "records.changes"},
	}}
	client, err := NewClient(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	assert.Equal(t, "records.changes", client.Topic())
	assert.NoError(t, client.Publish(context.Background(), nil, []byte("x"), nil))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, client.Consume(ctx, nil), context.DeadlineExceeded)
}

func TestKafkaClientClosesOnStop(t *testing.T) {
	cfg := config.Config{Messaging: config.Messaging{
		Driver:        "kafka",
		Enabled:       true,
		ConsumerGroup: "tabula-worker",
		Kafka: config.Kafka{
			Brokers:  []string{"127.0.0.1:1"},
			Topic:    "records.changes",
			MinBytes: 1,
			MaxBytes: 1 << 20,
		},
	}}
	lc := fxtest.NewLifecycle(t)
	client, err := NewClient(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, client.Enabled())

	lc.RequireStart()
	lc.RequireStop()
}
