package repository

import (
	"context"

	"RegimeLab/internal/domain/models"
	domrepo "RegimeLab/internal/domain/repository"
)

// NopRunStore stands in when ClickHouse is disabled.
type NopRunStore struct{}

func (NopRunStore) Init(context.Context) error                       { return nil }
func (NopRunStore) SaveRun(context.Context, models.RunSummary) error { return nil }
func (NopRunStore) RecentRuns(context.Context, string, int) ([]models.RunSummary, error) {
	return nil, nil
}
func (NopRunStore) Health(context.Context) error { return nil }
func (NopRunStore) Close() error                 { return nil }

// NopPublisher stands in when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishResult(context.Context, models.JobResultEvent) error { return nil }
func (NopPublisher) Close() error                                               { return nil }

var (
	_ domrepo.RunStore        = NopRunStore{}
	_ domrepo.ResultPublisher = NopPublisher{}
)
