package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/bus"
	"main/internal/schema"
)

func TestBridgeLifecycleWithoutBroker(t *testing.T) {
	b := bus.New(bus.PolicyBlock, 8, nil)

	br := NewKafka(b, KafkaConfig{
		Brokers:     []string{"localhost:9092"},
		TopicPrefix: "sim.",
	})
	assert.Equal(t, 200*time.Millisecond, br.cfg.BatchTimeout)

	// No mirrored topics: start/close must be a clean no-op and must
	// not require a reachable broker.
	ctx, cancel := context.WithCancel(context.Background())
	br.Start(ctx)
	cancel()
	require.NoError(t, br.Close())
}

func TestBridgeSubscribesMirroredTopics(t *testing.T) {
	b := bus.New(bus.PolicyDrop, 8, nil)
	br := NewKafka(b, KafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topics:  []schema.Topic{schema.TopicTradeExecutions, schema.TopicStopLossAlerts},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	br.Start(ctx)
	require.NotNil(t, br.sub)
	assert.Len(t, br.sub.Topics, 2)
	require.NoError(t, br.Close())
}
