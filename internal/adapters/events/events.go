// Package events provides sinks for prediction events.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"

	"github.com/okian/gesture/internal/domain/model"
	"github.com/okian/gesture/pkg/logger"
)

// Sentinel kinds for sink errors.
var (
	ErrUnknownSink = errors.New("unknown event sink")
	ErrPublish     = errors.New("publish event")
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	log logger.Logger
}

// NewLogSink returns a sink logging at info level.
func NewLogSink(l logger.Logger) *LogSink {
	if l == nil {
		l = logger.Get().Named("prediction_events")
	}
	return &LogSink{log: l}
}

// Publish logs e.
func (s *LogSink) Publish(ctx context.Context, e model.PredictionEvent) error { //nolint:gocritic // hugeParam: matches worker.Sink
	s.log.Info(ctx, "prediction",
		logger.String("event_id", e.EventID),
		logger.String("request_id", e.RequestID),
		logger.Int("model_id", e.ModelID),
		logger.String("label", e.Label),
		logger.Bool("no_detection", e.NoDetection),
		logger.Duration("latency", e.Latency),
	)
	return nil
}

// Close is a no-op.
func (s *LogSink) Close() error { return nil }

// KafkaSink publishes events as JSON, keyed by model id.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaSink connects a synchronous producer to brokers.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "gesture"
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Return.Successes = true
	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewKafkaSinkWithProducer(p, topic), nil
}

// NewKafkaSinkWithProducer wraps an existing producer.
func NewKafkaSinkWithProducer(p sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

// Publish sends e to the topic.
func (s *KafkaSink) Publish(_ context.Context, e model.PredictionEvent) error { //nolint:gocritic // hugeParam: matches worker.Sink
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPublish, err)
	}
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(strconv.Itoa(e.ModelID)),
		Value: sarama.ByteEncoder(payload),
	}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}

// Close closes the producer.
func (s *KafkaSink) Close() error {
	return s.producer.Close()
}

// Sink publishes prediction events and releases its resources on Close.
type Sink interface {
	Publish(ctx context.Context, e model.PredictionEvent) error
	Close() error
}

// Open builds the sink named kind: "log" or "kafka".
func Open(kind string, brokers []string, topic string, l logger.Logger) (Sink, error) {
	switch kind {
	case "", "log":
		return NewLogSink(l), nil
	case "kafka":
		return NewKafkaSink(brokers, topic)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSink, kind)
	}
}
