// Package kafka is the asynchronous order intake: a consumer-group
// reader that feeds limit-order batches from a topic into the engine.
package kafka

import (
	"context"
	"errors"
	"io"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Consumer struct {
	reader *kafka.Reader
	dead   *Producer
	log    *zap.Logger
}

// NewConsumer builds a consumer-group reader. dead may be nil; when set,
// payloads the handler rejects are forwarded there before being committed.
func NewConsumer(brokers []string, topic, group string, dead *Producer, log *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			GroupID:  group,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10 << 20,
		}),
		dead: dead,
		log:  log,
	}
}

// Run fetches messages until ctx ends, handing each payload to handle.
// A handler error is terminal for the message: order batches are not
// retryable once the engine has rejected them, so the payload goes to
// the dead-letter topic and the offset is committed.
func (c *Consumer) Run(ctx context.Context, handle func(context.Context, []byte) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := handle(ctx, msg.Value); err != nil {
			c.log.Warn("order intake message rejected",
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			if c.dead != nil {
				if dlqErr := c.dead.Send(ctx, msg.Key, msg.Value); dlqErr != nil {
					c.log.Error("dead-letter publish failed",
						zap.Int64("offset", msg.Offset),
						zap.Error(dlqErr))
				}
			}
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

func (c *Consumer) Close() error { return c.reader.Close() }
