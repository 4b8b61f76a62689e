package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each report as one message keyed by run id.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}}
}

func (s *KafkaSink) Publish(ctx context.Context, r *Report) error {
	const op = "KafkaSink.Publish"
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(r.RunID.String()),
		Value: payload,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// Decode parses a report produced by KafkaSink.
func Decode(value []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(value, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
