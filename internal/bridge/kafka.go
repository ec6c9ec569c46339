// Package bridge mirrors bus traffic onto a Kafka broker so external
// consumers (report writers, dashboards) can follow a run without
// being wired into the process. The simulation never depends on the
// broker: bridge failures are logged and the run continues.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/codec"
	"main/internal/schema"
)

// KafkaConfig selects the broker and the topics to mirror.
type KafkaConfig struct {
	Brokers      []string
	TopicPrefix  string
	Topics       []schema.Topic
	BatchTimeout time.Duration
}

// Bridge forwards selected bus topics to Kafka.
type Bridge struct {
	cfg    KafkaConfig
	bus    *bus.Bus
	writer *kafka.Writer
	sub    *bus.Subscription
	wg     sync.WaitGroup
}

// NewKafka creates a bridge on the given bus.
func NewKafka(b *bus.Bus, cfg KafkaConfig) *Bridge {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 200 * time.Millisecond
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: int(kafka.RequireOne),
		Async:        true,
	})
	return &Bridge{cfg: cfg, bus: b, writer: writer}
}

// Start subscribes to the mirrored topics and begins forwarding.
func (br *Bridge) Start(ctx context.Context) {
	br.sub = br.bus.Subscribe("kafka_bridge", br.cfg.Topics...)
	br.wg.Add(1)
	go func() {
		defer br.wg.Done()
		br.sub.Run(ctx, func(m bus.Message) {
			br.forward(ctx, m)
		})
	}()
	logs.Infof("kafka bridge started, topics=%d brokers=%v", len(br.cfg.Topics), br.cfg.Brokers)
}

func (br *Bridge) forward(ctx context.Context, m bus.Message) {
	value, err := codec.Encode(m)
	if err != nil {
		logs.Warnf("kafka bridge: encode %s: %v", m.Topic, err)
		return
	}
	err = br.writer.WriteMessages(ctx, kafka.Message{
		Topic: br.cfg.TopicPrefix + string(m.Topic),
		Key:   []byte(m.Publisher),
		Value: value,
	})
	if err != nil {
		logs.Warnf("kafka bridge: write %s: %v", m.Topic, err)
	}
}

// Close stops forwarding and flushes the writer.
func (br *Bridge) Close() error {
	if br.sub != nil {
		br.bus.Unsubscribe(br.sub)
	}
	br.wg.Wait()
	return br.writer.Close()
}
