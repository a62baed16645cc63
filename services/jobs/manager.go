// Package jobs runs pipeline operations in the background and tracks them
// until their result is collected.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"sonopix/logging"
	"sonopix/pkg/models"
	"sonopix/pkg/progress"

	"github.com/google/uuid"
)

// Runner performs one operation and returns its output bytes.
type Runner func(ctx context.Context, onProgress progress.Func) ([]byte, error)

// Request describes a job to start.
type Request struct {
	Direction  models.Direction
	Format     string
	InputBytes int64
	Run        Runner
	// OnFinish, if set, is called once after the terminal state is saved.
	OnFinish FinishFunc
}

// FinishFunc receives a snapshot of a finished job and the error that ended it.
type FinishFunc func(job *models.Job, err error, duration time.Duration)

// Config holds Manager settings
type Config struct {
	Store         Store
	MaxConcurrent int
	Logger        *logging.Logger
}

// Manager owns the goroutines of running jobs
type Manager struct {
	store  Store
	logger *logging.Logger
	slots  chan struct{}

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewManager creates a job manager
func NewManager(cfg Config) *Manager {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore(time.Hour)
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:      cfg.Store,
		logger:     cfg.Logger,
		slots:      make(chan struct{}, cfg.MaxConcurrent),
		baseCtx:    ctx,
		baseCancel: cancel,
		cancels:    make(map[uuid.UUID]context.CancelFunc),
		now:        time.Now,
	}
}

// Submit records a pending job and starts it. When every slot is taken the
// job is not created and a JOBS_BUSY error is returned.
func (m *Manager) Submit(ctx context.Context, req Request) (*models.Job, error) {
	if !req.Direction.Valid() {
		return nil, fmt.Errorf("%w: unknown direction %q", models.ErrInvalidInput, req.Direction)
	}
	if req.Run == nil {
		return nil, fmt.Errorf("%w: job has no runner", models.ErrInvalidInput)
	}

	select {
	case m.slots <- struct{}{}:
	default:
		return nil, models.NewError(models.ErrCodeJobsBusy,
			fmt.Sprintf("all %d job slots are busy", cap(m.slots)), nil)
	}

	job := &models.Job{
		ID:         uuid.New(),
		Direction:  req.Direction,
		Status:     models.JobStatusPending,
		Format:     req.Format,
		InputBytes: req.InputBytes,
		CreatedAt:  m.now().UTC(),
	}
	if err := m.store.Save(ctx, job); err != nil {
		<-m.slots
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(m.baseCtx)
	m.mu.Lock()
	m.cancels[job.ID] = cancel
	m.mu.Unlock()

	snapshot := *job
	m.wg.Add(1)
	go m.run(jobCtx, cancel, job, req)

	m.logger.Info("Job %s submitted (%s, %d bytes)", job.ID, job.Direction, job.InputBytes)
	return &snapshot, nil
}

func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, job *models.Job, req Request) {
	defer m.wg.Done()
	defer func() { <-m.slots }()
	defer func() {
		m.mu.Lock()
		delete(m.cancels, job.ID)
		m.mu.Unlock()
		cancel()
	}()

	// Store writes outlive the job's own cancellation
	storeCtx := context.WithoutCancel(ctx)

	started := m.now().UTC()
	job.Status = models.JobStatusRunning
	job.StartedAt = &started
	m.save(storeCtx, job)

	onProgress := func(percent float64) {
		p := int(math.Floor(percent))
		if p > job.Progress {
			job.Progress = p
			m.save(storeCtx, job)
		}
	}

	output, err := req.Run(ctx, onProgress)
	if err == nil && ctx.Err() != nil {
		err = models.NewCanceledError(ctx.Err())
	}

	if err == nil {
		if saveErr := m.store.SaveResult(storeCtx, job.ID, output); saveErr != nil {
			err = saveErr
		}
	}

	finished := m.now().UTC()
	job.FinishedAt = &finished
	switch {
	case err == nil:
		job.Status = models.JobStatusSucceeded
		job.Progress = 100
		job.OutputBytes = int64(len(output))
	case models.IsCode(err, models.ErrCodeCanceled):
		job.Status = models.JobStatusCanceled
		job.ErrorCode = models.ErrCodeCanceled
		job.ErrorMessage = "operation canceled"
	default:
		job.Status = models.JobStatusFailed
		job.ErrorCode, job.ErrorMessage = describeError(job.Direction, err)
	}
	m.save(storeCtx, job)

	duration := finished.Sub(started)
	if err != nil {
		m.logger.Warn("Job %s %s after %v: %s", job.ID, job.Status, duration, job.ErrorCode)
	} else {
		m.logger.Info("Job %s succeeded in %v (%d bytes)", job.ID, duration, job.OutputBytes)
	}

	if req.OnFinish != nil {
		snapshot := *job
		req.OnFinish(&snapshot, err, duration)
	}
}

func (m *Manager) save(ctx context.Context, job *models.Job) {
	if err := m.store.Save(ctx, job); err != nil {
		m.logger.Error("Failed to save job %s: %v", job.ID, err)
	}
}

// describeError keeps only what a client may see. Opaque failures are
// recorded under the direction's failure code with the generic message.
func describeError(direction models.Direction, err error) (code, message string) {
	var e *models.Error
	if !errors.As(err, &e) {
		return "INTERNAL", models.ErrInternalServer.Error()
	}
	if models.OpaqueCode(e.Code) {
		return models.PublicCode(direction, e.Code), models.GenericFailureMessage(direction)
	}
	return e.Code, e.Message
}

// Get returns the current state of a job
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return m.store.Get(ctx, id)
}

// Result hands out the output of a succeeded job exactly once.
func (m *Manager) Result(ctx context.Context, id uuid.UUID) ([]byte, *models.Job, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	switch job.Status {
	case models.JobStatusSucceeded:
	case models.JobStatusFailed, models.JobStatusCanceled:
		return nil, job, models.ErrJobFailed
	default:
		return nil, job, models.ErrJobNotFinished
	}

	data, err := m.store.TakeResult(ctx, id)
	if err != nil {
		return nil, job, err
	}
	return data, job, nil
}

// Cancel requests cancellation of a running job. Canceling a finished job
// does nothing. The job reaches the canceled state asynchronously.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}

	m.mu.Lock()
	cancel, ok := m.cancels[id]
	m.mu.Unlock()
	if !ok {
		// Running on another instance sharing the store
		return job, fmt.Errorf("%w: job %s is not running here", models.ErrJobNotFound, id)
	}

	cancel()
	m.logger.Info("Job %s cancellation requested", id)
	return job, nil
}

// Running returns how many jobs hold a slot
func (m *Manager) Running() int {
	return len(m.slots)
}

// Shutdown cancels every running job and waits for them to finish or for
// ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.baseCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobs still running at shutdown: %w", ctx.Err())
	}
}
