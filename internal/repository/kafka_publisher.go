package repository

import (
	"context"

	"RegimeLab/internal/domain/models"
	domrepo "RegimeLab/internal/domain/repository"
	pkgkafka "RegimeLab/pkg/kafka"
)

// KafkaResultPublisher publishes job results keyed by job id.
type KafkaResultPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaResultPublisher(producer *pkgkafka.Producer, topic string) *KafkaResultPublisher {
	return &KafkaResultPublisher{producer: producer, topic: topic}
}

func (p *KafkaResultPublisher) PublishResult(ctx context.Context, ev models.JobResultEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.ID), ev)
}

// Close is a no-op; the producer is shared with the log collector and
// closed by the app.
func (p *KafkaResultPublisher) Close() error { return nil }

var _ domrepo.ResultPublisher = (*KafkaResultPublisher)(nil)
