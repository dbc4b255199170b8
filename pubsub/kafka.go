package pubsub

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"

	"github.com/farmgate-io/farmgate/core/logger"
)

// KafkaConfiguration contains the connection settings for the Kafka cluster
type KafkaConfiguration struct {
	Brokers []string
	// GroupID is the consumer group of this gateway instance
	GroupID string
}

// Kafka is the Kafka implementation of the Conn interface
type Kafka struct {
	config KafkaConfiguration
	reader *kafka.Reader
	cancel context.CancelFunc
}

// NewKafka returns a new Kafka connection. The reader is only created on
// Subscribe.
func NewKafka(config KafkaConfiguration) *Kafka {
	return &Kafka{config: config}
}

// Subscribe starts a consumer for topic and feeds every message to h.
func (c *Kafka) Subscribe(topic string, h Handler) error {
	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers: c.config.Brokers,
		GroupID: c.config.GroupID,
		Topic:   topic,
	})
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	rlog := logger.Default().WithField("topic", topic)
	go func() {
		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				// the reader does not recover from read errors, consumption stops here
				rlog.WithError(err).Error("cannot read from kafka")
				return
			}
			h(msg.Topic, msg.Value)
		}
	}()
	rlog.Info("consuming from kafka")
	return nil
}

// Close stops the consumer.
func (c *Kafka) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
