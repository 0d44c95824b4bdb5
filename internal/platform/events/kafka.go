package events

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter is the subset of kafka.Writer the producer uses.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writer KafkaWriter
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	return &KafkaProducer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

func NewKafkaProducerWithWriter(w KafkaWriter) *KafkaProducer {
	return &KafkaProducer{writer: w}
}

func (p *KafkaProducer) Publish(ctx context.Context, msg Message) error {
	body, err := encode(msg)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Key),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(msg.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", msg.Type, err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
