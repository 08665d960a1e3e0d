package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"RegimeLab/internal/domain/models"
	domrepo "RegimeLab/internal/domain/repository"
	pkgkafka "RegimeLab/pkg/kafka"
	applogger "RegimeLab/pkg/logger"
)

// KafkaRequestsHandler turns job requests from a Kafka topic into queued
// jobs. Results are announced on the results topic once the job finishes.
type KafkaRequestsHandler struct {
	topic   string
	jobs    *JobsUseCase
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewKafkaRequestsHandler(topic string, jobs *JobsUseCase, metrics domrepo.Metrics, l *applogger.Logger) *KafkaRequestsHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &KafkaRequestsHandler{topic: topic, jobs: jobs, metrics: metrics, l: l}
}

func (h *KafkaRequestsHandler) Topic() string { return h.topic }

// incoming message schema: {id?, type, payload}
func (h *KafkaRequestsHandler) Handle(ctx context.Context, b []byte) error {
	var req models.CreateJobRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.recordError("consumer_unmarshal")
		h.l.Warn("dropping undecodable job request", applogger.Error(err))
		return nil
	}

	rec, err := h.jobs.Submit(ctx, req)
	if err != nil {
		if permanent(err) {
			h.recordError("consumer_invalid")
			h.l.Warn("dropping invalid job request",
				applogger.String("trace_id", pkgkafka.TraceID(ctx)), applogger.Error(err))
			return nil
		}
		h.recordError("consumer_submit")
		return fmt.Errorf("submit job: %w", err)
	}

	h.l.Info("job request accepted",
		applogger.String("id", rec.ID),
		applogger.String("type", string(rec.Type)),
		applogger.String("trace_id", pkgkafka.TraceID(ctx)))
	return nil
}

func (h *KafkaRequestsHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*KafkaRequestsHandler)(nil)
