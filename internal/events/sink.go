package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaSink writes each event to the topic "{prefix}.{type}", keyed by the
// aggregate id so events of one booking stay ordered within a partition.
type KafkaSink struct {
	producer sarama.SyncProducer
	prefix   string
	log      *zap.Logger
}

func NewKafkaSink(brokers []string, prefix string, log *zap.Logger) (*KafkaSink, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewKafkaSinkWithProducer(producer, prefix, log), nil
}

func NewKafkaSinkWithProducer(producer sarama.SyncProducer, prefix string, log *zap.Logger) *KafkaSink {
	return &KafkaSink{
		producer: producer,
		prefix:   prefix,
		log:      log.With(zap.String("sink", "kafka")),
	}
}

func (s *KafkaSink) Topic(t Type) string {
	if s.prefix == "" {
		return string(t)
	}
	return s.prefix + "." + string(t)
}

func (s *KafkaSink) Send(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.Topic(event.Type),
		Key:   sarama.StringEncoder(event.Key),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send %s event: %w", event.Type, err)
	}

	s.log.Debug("Published event",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}

// LogSink writes events to the application log. Used when no broker is
// configured.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.With(zap.String("sink", "log"))}
}

func (s *LogSink) Send(_ context.Context, event Event) error {
	s.log.Info("Domain event",
		zap.String("type", string(event.Type)),
		zap.String("key", event.Key),
		zap.Time("occurred_at", event.OccurredAt),
		zap.Any("payload", event.Payload),
	)
	return nil
}

func (s *LogSink) Close() error { return nil }
