// Package broadcaster drains the event outbox to Kafka. Delivery is
// at-least-once: an entry is marked SENT before the publish and ACKED
// after the broker confirms, so a crash between the two republishes.
package broadcaster

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"njord/infra/outbox"
)

type Broadcaster struct {
	outbox   *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *zap.Logger
}

func New(ob *outbox.Outbox, brokers []string, topic string, interval time.Duration, log *zap.Logger) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithProducer(ob, producer, topic, interval, log), nil
}

// NewWithProducer wires an existing producer; tests hand in a mock.
func NewWithProducer(ob *outbox.Outbox, producer sarama.SyncProducer, topic string, interval time.Duration, log *zap.Logger) *Broadcaster {
	return &Broadcaster{
		outbox:   ob,
		producer: producer,
		topic:    topic,
		interval: interval,
		log:      log,
	}
}

// Run drains the outbox on a ticker until ctx ends.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.DrainOnce()
		}
	}
}

// DrainOnce publishes every pending entry in order. A broker error
// leaves the entry SENT for the next pass.
func (b *Broadcaster) DrainOnce() {
	err := b.outbox.ScanPending(func(e *outbox.Entry) error {
		if err := b.outbox.MarkSent(e.Seq, e.Index); err != nil {
			return err
		}

		// Keying by command sequence keeps one command's events in a
		// single partition, in order.
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, e.Seq)
		_, _, err := b.producer.SendMessage(&sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.ByteEncoder(key),
			Value: sarama.ByteEncoder(e.Payload),
		})
		if err != nil {
			b.log.Warn("event publish failed, will retry",
				zap.Uint64("seq", e.Seq),
				zap.Uint32("index", e.Index),
				zap.Error(err))
			return nil
		}
		return b.outbox.MarkAcked(e.Seq, e.Index)
	})
	if err != nil {
		b.log.Error("outbox drain aborted", zap.Error(err))
	}
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
