package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"RegimeLab/internal/domain/models"
	domrepo "RegimeLab/internal/domain/repository"
	svcmetrics "RegimeLab/internal/service/metrics"
	"RegimeLab/internal/services/bootstrap"
	apphttp "RegimeLab/pkg/http"
	applogger "RegimeLab/pkg/logger"
	"RegimeLab/pkg/queue"
)

// progressStep is the smallest progress change worth persisting.
const progressStep = 0.05

// jobMessage is the queue payload of one job.
type jobMessage struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// JobsUseCase accepts asynchronous engine jobs and executes them from the
// queue.
type JobsUseCase struct {
	store      domrepo.JobStore
	queue      queue.Queue
	robustness *RobustnessUseCase
	montecarlo *MonteCarloUseCase
	pub        domrepo.ResultPublisher
	l          *applogger.Logger
	now        func() time.Time
}

func NewJobsUseCase(store domrepo.JobStore, q queue.Queue, robustness *RobustnessUseCase, montecarlo *MonteCarloUseCase, pub domrepo.ResultPublisher, l *applogger.Logger) *JobsUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	return &JobsUseCase{
		store:      store,
		queue:      q,
		robustness: robustness,
		montecarlo: montecarlo,
		pub:        pub,
		l:          l,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// DecodeJobPayload decodes, defaults and validates the payload of a job of
// type typ. It returns a *RobustnessRequest or a *MonteCarloRequest.
func DecodeJobPayload(ctx context.Context, typ models.JobType, payload json.RawMessage) (interface{}, error) {
	var req interface{}
	switch typ {
	case models.JobRobustness:
		req = &models.RobustnessRequest{}
	case models.JobMonteCarlo:
		req = &models.MonteCarloRequest{}
	default:
		return nil, invalid(fmt.Errorf("unknown job type %q", typ))
	}
	if len(payload) == 0 {
		return nil, invalid(fmt.Errorf("payload is required"))
	}
	if err := json.Unmarshal(payload, req); err != nil {
		return nil, invalid(fmt.Errorf("decode payload: %w", err))
	}
	if verr := apphttp.ApplyDefaultsAndValidate(ctx, req); verr != nil {
		return nil, invalid(errors.New(apphttp.ValidationErrorsString(verr)))
	}
	return req, nil
}

// Submit stores a queued record and enqueues the job. Submitting an id that
// already exists returns the existing record.
func (uc *JobsUseCase) Submit(ctx context.Context, req models.CreateJobRequest) (models.JobRecord, error) {
	if _, err := DecodeJobPayload(ctx, req.Type, req.Payload); err != nil {
		return models.JobRecord{}, err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	} else if rec, err := uc.store.Get(ctx, id); err == nil {
		return rec, nil
	} else if !errors.Is(err, domrepo.ErrNotFound) {
		return models.JobRecord{}, err
	}

	now := uc.now()
	rec := models.JobRecord{
		ID:        id,
		Type:      req.Type,
		Status:    models.JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.store.Save(ctx, rec); err != nil {
		return models.JobRecord{}, fmt.Errorf("save job: %w", err)
	}

	if err := uc.queue.Enqueue(ctx, string(req.Type), jobMessage{ID: id, Payload: req.Payload}); err != nil {
		rec.Status = models.JobFailed
		rec.Error = "enqueue failed"
		rec.UpdatedAt = uc.now()
		if serr := uc.store.Save(ctx, rec); serr != nil {
			uc.l.Warn("save failed job", applogger.String("id", id), applogger.Error(serr))
		}
		return models.JobRecord{}, fmt.Errorf("enqueue job: %w", err)
	}

	uc.l.Info("job queued", applogger.String("id", id), applogger.String("type", string(req.Type)))
	return rec, nil
}

func (uc *JobsUseCase) Get(ctx context.Context, id string) (models.JobRecord, error) {
	return uc.store.Get(ctx, id)
}

// Execute runs a queued job to completion and records the outcome. Errors
// that a retry cannot fix are wrapped with queue.ErrPermanent.
func (uc *JobsUseCase) Execute(ctx context.Context, id string, typ models.JobType, payload json.RawMessage) error {
	ok, err := uc.store.Acquire(ctx, id)
	if err != nil {
		return fmt.Errorf("acquire job %s: %w", id, err)
	}
	if !ok {
		uc.l.Debug("job already running elsewhere", applogger.String("id", id))
		return nil
	}
	defer func() {
		if err := uc.store.Release(context.WithoutCancel(ctx), id); err != nil {
			uc.l.Warn("release job lock", applogger.String("id", id), applogger.Error(err))
		}
	}()

	svcmetrics.JobsInFlight.Inc()
	defer svcmetrics.JobsInFlight.Dec()

	rec, err := uc.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, domrepo.ErrNotFound) {
			return err
		}
		rec = models.JobRecord{ID: id, Type: typ, CreatedAt: uc.now()}
	}
	if rec.Status == models.JobDone {
		return nil
	}
	rec.Status = models.JobRunning
	rec.Progress = 0
	rec.Error = ""
	uc.save(ctx, rec)

	var mu sync.Mutex
	runCtx := WithRunID(ctx, id)
	runCtx = WithProgress(runCtx, func(done float64) {
		mu.Lock()
		defer mu.Unlock()
		if done < 1 && done-rec.Progress < progressStep {
			return
		}
		rec.Progress = done
		uc.save(ctx, rec)
	})

	result, err := uc.run(runCtx, typ, payload)

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		rec.Status = models.JobFailed
		rec.Error = err.Error()
		uc.save(ctx, rec)
		uc.publishFailure(ctx, rec)
		uc.l.Error("job failed", applogger.String("id", id), applogger.String("type", string(typ)), applogger.Error(err))
		if permanent(err) {
			return fmt.Errorf("%w: %v", queue.ErrPermanent, err)
		}
		return err
	}

	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("%w: encode result: %v", queue.ErrPermanent, err)
	}
	rec.Status = models.JobDone
	rec.Progress = 1
	rec.Result = body
	uc.save(ctx, rec)
	return nil
}

func (uc *JobsUseCase) run(ctx context.Context, typ models.JobType, payload json.RawMessage) (interface{}, error) {
	req, err := DecodeJobPayload(ctx, typ, payload)
	if err != nil {
		return nil, err
	}
	switch r := req.(type) {
	case *models.RobustnessRequest:
		return uc.robustness.Run(ctx, *r)
	case *models.MonteCarloRequest:
		return uc.montecarlo.Run(ctx, *r)
	}
	return nil, invalid(fmt.Errorf("unknown job type %q", typ))
}

func (uc *JobsUseCase) save(ctx context.Context, rec models.JobRecord) {
	rec.UpdatedAt = uc.now()
	if err := uc.store.Save(context.WithoutCancel(ctx), rec); err != nil {
		uc.l.Warn("save job record", applogger.String("id", rec.ID), applogger.Error(err))
	}
}

func (uc *JobsUseCase) publishFailure(ctx context.Context, rec models.JobRecord) {
	if uc.pub == nil {
		return
	}
	ev := models.JobResultEvent{
		ID:         rec.ID,
		Type:       rec.Type,
		Status:     models.JobFailed,
		Error:      rec.Error,
		FinishedAt: uc.now(),
	}
	if err := uc.pub.PublishResult(context.WithoutCancel(ctx), ev); err != nil {
		uc.l.Warn("publish job failure", applogger.String("id", rec.ID), applogger.Error(err))
	}
}

func permanent(err error) bool {
	return errors.Is(err, bootstrap.ErrInvalidArgument) ||
		errors.Is(err, bootstrap.ErrInsufficientData) ||
		errors.Is(err, domrepo.ErrNoCandles)
}

// QueueJobs returns the queue handlers for every job type.
func (uc *JobsUseCase) QueueJobs() []queue.Job {
	return []queue.Job{
		&engineJob{typ: models.JobRobustness, jobs: uc},
		&engineJob{typ: models.JobMonteCarlo, jobs: uc},
	}
}

type engineJob struct {
	typ  models.JobType
	jobs *JobsUseCase
}

func (j *engineJob) Name() string { return string(j.typ) + "_job" }
func (j *engineJob) Type() string { return string(j.typ) }

func (j *engineJob) Handle(ctx context.Context, payload interface{}) error {
	msg, err := queue.ParsePayload[jobMessage](payload)
	if err != nil {
		return fmt.Errorf("%w: %v", queue.ErrPermanent, err)
	}
	if msg.ID == "" {
		return fmt.Errorf("%w: job id missing", queue.ErrPermanent)
	}
	return j.jobs.Execute(ctx, msg.ID, j.typ, msg.Payload)
}

var _ queue.Job = (*engineJob)(nil)
