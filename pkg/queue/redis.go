package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"RegimeLab/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps messages in Redis lists so queued jobs survive a restart.
//
// Keys under the prefix:
//
//	<prefix>:pending            LPUSH by producers, BLMOVE by workers
//	<prefix>:inflight:<name>    messages a worker of this process is handling
//	<prefix>:retry              ZSET scored by the unix millis a retry is due
//	<prefix>:dlq                messages that failed for good
//
// On Start, anything left in this process's inflight list by a previous run
// goes back to pending.
type RedisQueue struct {
	l        *logger.Logger
	cfg      *QueueConfig
	client   *redis.Client
	prefix   string
	name     string
	poll     time.Duration
	maxDelay time.Duration

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type RedisQueueOption func(*RedisQueue)

func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) { r.prefix = prefix }
}

// WithConsumerName names this process's inflight list. It should be stable
// across restarts of the same instance. Defaults to the hostname.
func WithConsumerName(name string) RedisQueueOption {
	return func(r *RedisQueue) {
		if name != "" {
			r.name = name
		}
	}
}

func NewRedisQueue(l *logger.Logger, config *QueueConfig, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	if l == nil {
		l = logger.Nop()
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "local"
	}
	r := &RedisQueue{
		l:      l,
		cfg:    config.withDefaults(),
		client: client,
		prefix: "regimelab:queue",
		name:   host,
		poll:   time.Second,
		jobs:   make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.maxDelay = 16 * r.cfg.RetryDelay
	return r
}

func (r *RedisQueue) pendingKey() string  { return r.prefix + ":pending" }
func (r *RedisQueue) inflightKey() string { return r.prefix + ":inflight:" + r.name }
func (r *RedisQueue) retryKey() string    { return r.prefix + ":retry" }
func (r *RedisQueue) deadKey() string     { return r.prefix + ":dlq" }

func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.Type()]; ok {
		r.l.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.l.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	n, err := r.requeueInflight(ctx)
	if err != nil {
		return fmt.Errorf("requeue inflight: %w", err)
	}
	if n > 0 {
		r.l.Warn("requeued interrupted messages", logger.Int("count", n))
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.promoteRetries()

	r.l.Info("redis queue started",
		logger.Int("workers", r.cfg.Workers),
		logger.String("addr", r.client.Options().Addr),
		logger.String("consumer", r.name))
	return nil
}

func (r *RedisQueue) requeueInflight(ctx context.Context) (int, error) {
	n := 0
	for {
		err := r.client.LMove(ctx, r.inflightKey(), r.pendingKey(), "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.l.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop redis queue: %w", ctx.Err())
	}
}

func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !running {
		return fmt.Errorf("queue not running")
	}
	if !known {
		return fmt.Errorf("no job registered for type %q", msgType)
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return err
	}
	b, err := json.Marshal(Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.pendingKey(), b).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	for r.ctx.Err() == nil {
		raw, err := r.client.BLMove(r.ctx, r.pendingKey(), r.inflightKey(), "RIGHT", "LEFT", r.poll).Result()
		switch {
		case err == nil:
		case errors.Is(err, redis.Nil), r.ctx.Err() != nil:
			continue
		default:
			r.l.Error("blmove", logger.Int("worker", id), logger.Error(err))
			r.sleep(r.poll)
			continue
		}

		r.handle(raw)
		// handled or rescheduled: either way it leaves the inflight list
		if err := r.client.LRem(context.Background(), r.inflightKey(), 1, raw).Err(); err != nil {
			r.l.Warn("lrem inflight", logger.Error(err))
		}
	}
}

func (r *RedisQueue) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-r.ctx.Done():
	}
}

func (r *RedisQueue) handle(raw string) {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		r.l.Error("drop undecodable message", logger.Error(err))
		r.bury(raw)
		return
	}

	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.l.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.bury(raw)
		return
	}

	start := time.Now()
	err := job.Handle(r.ctx, msg.Payload)
	if err == nil {
		r.l.Debug("message processed", logger.String("id", msg.ID), logger.String("job", job.Name()),
			logger.Duration("took", time.Since(start)))
		return
	}
	if errors.Is(err, context.Canceled) && r.ctx.Err() != nil {
		// shutting down: leave it for the next start to pick up
		r.retryAt(msg, time.Now())
		return
	}

	msg.Attempts++
	if errors.Is(err, ErrPermanent) || msg.Attempts > r.cfg.RetryLimit {
		r.l.Error("message dead-lettered", logger.String("id", msg.ID), logger.String("job", job.Name()),
			logger.Int("attempts", msg.Attempts), logger.Error(err))
		if b, merr := json.Marshal(msg); merr == nil {
			raw = string(b)
		}
		r.bury(raw)
		return
	}
	due := time.Now().Add(backoff(r.cfg.RetryDelay, r.maxDelay, msg.Attempts))
	r.l.Warn("message retry scheduled", logger.String("id", msg.ID), logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts), logger.String("due", due.Format(time.RFC3339)), logger.Error(err))
	r.retryAt(msg, due)
}

// backoff doubles base for every attempt after the first, up to limit.
func backoff(base, limit time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}
	return d
}

func (r *RedisQueue) retryAt(msg Message, due time.Time) {
	b, err := json.Marshal(msg)
	if err != nil {
		r.l.Error("marshal retry", logger.Error(err))
		return
	}
	z := redis.Z{Score: float64(due.UnixMilli()), Member: string(b)}
	if err := r.client.ZAdd(context.Background(), r.retryKey(), z).Err(); err != nil {
		r.l.Error("zadd retry", logger.Error(err))
	}
}

func (r *RedisQueue) bury(raw string) {
	if err := r.client.LPush(context.Background(), r.deadKey(), raw).Err(); err != nil {
		r.l.Error("lpush dlq", logger.Error(err))
	}
}

// promoteRetries moves due retries back to pending. Only the instance whose
// ZREM succeeds pushes a message, so several instances can share the keys.
func (r *RedisQueue) promoteRetries() {
	defer r.wg.Done()
	tick := r.cfg.RetryDelay / 4
	if tick < 100*time.Millisecond {
		tick = 100 * time.Millisecond
	}
	if tick > 5*time.Second {
		tick = 5 * time.Second
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-t.C:
		}
		due, err := r.client.ZRangeByScore(r.ctx, r.retryKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatInt(time.Now().UnixMilli(), 10),
			Count: 100,
		}).Result()
		if err != nil {
			if r.ctx.Err() == nil {
				r.l.Error("read retries", logger.Error(err))
			}
			continue
		}
		for _, m := range due {
			removed, err := r.client.ZRem(r.ctx, r.retryKey(), m).Result()
			if err != nil || removed == 0 {
				continue
			}
			if err := r.client.LPush(r.ctx, r.pendingKey(), m).Err(); err != nil {
				r.l.Error("requeue retry", logger.Error(err))
			}
		}
	}
}

var _ Queue = (*RedisQueue)(nil)
