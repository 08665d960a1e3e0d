package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RegimeLab/internal/domain/models"
	domrepo "RegimeLab/internal/domain/repository"
	pkgcache "RegimeLab/pkg/cache"
)

const jobLockTTL = 30 * time.Minute

// CacheJobStore keeps job records in a pkg/cache Service (Redis when
// enabled, memory otherwise). Records expire after ttl.
type CacheJobStore struct {
	cache pkgcache.Service
	ttl   time.Duration
}

func NewCacheJobStore(c pkgcache.Service, ttl time.Duration) *CacheJobStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CacheJobStore{cache: c, ttl: ttl}
}

func jobKey(id string) string  { return pkgcache.GenerateKey("job", id) }
func lockKey(id string) string { return pkgcache.GenerateKey("job:lock", id) }

func (s *CacheJobStore) Save(ctx context.Context, rec models.JobRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("save job: empty id")
	}
	if err := s.cache.Set(ctx, jobKey(rec.ID), rec, s.ttl); err != nil {
		return fmt.Errorf("save job %s: %w", rec.ID, err)
	}
	return nil
}

func (s *CacheJobStore) Get(ctx context.Context, id string) (models.JobRecord, error) {
	var rec models.JobRecord
	if err := s.cache.Get(ctx, jobKey(id), &rec); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return models.JobRecord{}, fmt.Errorf("job %s: %w", id, domrepo.ErrNotFound)
		}
		return models.JobRecord{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return rec, nil
}

func (s *CacheJobStore) Acquire(ctx context.Context, id string) (bool, error) {
	return s.cache.TryLock(ctx, lockKey(id), jobLockTTL)
}

func (s *CacheJobStore) Release(ctx context.Context, id string) error {
	return s.cache.Unlock(ctx, lockKey(id))
}

var _ domrepo.JobStore = (*CacheJobStore)(nil)
