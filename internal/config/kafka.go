package config

import (
	"github.com/segmentio/kafka-go"
)

func NewKafkaWriter(k Kafka) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(k.Brokers...),
		Topic:                  k.Topic,
		Balancer:               &kafka.Hash{}, // same order key, same partition
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaReader(k Kafka) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.Brokers,
		GroupID:  k.GroupID,
		Topic:    k.Topic,
		MinBytes: 1,    // cache evictions should not wait for a batch
		MaxBytes: 10e6, // 10MB
	})
}
