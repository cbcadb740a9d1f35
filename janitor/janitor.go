// Package janitor finishes column deletes whose task cleanup failed and could
// not be rolled back. It drains the cleanup queue with a fixed worker pool.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/stackhead/task-management-app/baas"
	"github.com/stackhead/task-management-app/domain"
	"github.com/stackhead/task-management-app/storage"
)

// Source is the queue the janitor drains.
type Source interface {
	Receive(ctx context.Context, max int) ([]storage.Message, error)
	Ack(ctx context.Context, m storage.Message) error
}

// Config tunes the worker pool.
type Config struct {
	Workers     int
	BatchSize   int
	PollInitial time.Duration
	PollMax     time.Duration
	JobTimeout  time.Duration
	// MaxDequeue drops a message after this many failed attempts.
	MaxDequeue int64
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 16
	}
	if c.BatchSize > 32 {
		// Azure Storage queues return at most 32 messages per call.
		c.BatchSize = 32
	}
	if c.PollInitial <= 0 {
		c.PollInitial = 250 * time.Millisecond
	}
	if c.PollMax <= 0 {
		c.PollMax = 30 * time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 60 * time.Second
	}
	if c.MaxDequeue <= 0 {
		c.MaxDequeue = 5
	}
	return c
}

// Janitor deletes the tasks listed by cleanup jobs.
type Janitor struct {
	src    Source
	docs   baas.Documents
	cfg    Config
	logger *log.Logger
}

func New(src Source, docs baas.Documents, cfg Config, logger *log.Logger) *Janitor {
	if src == nil || docs == nil {
		panic("janitor.New: source and documents are required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Janitor{src: src, docs: docs, cfg: cfg.withDefaults(), logger: logger}
}

// Run polls the queue until ctx is cancelled. Messages already handed to a
// worker are finished before Run returns.
func (j *Janitor) Run(ctx context.Context) error {
	work := make(chan storage.Message, j.cfg.BatchSize)
	var wg sync.WaitGroup
	for i := 0; i < j.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for m := range work {
				j.handle(context.WithoutCancel(ctx), id, m)
			}
		}(i)
	}
	defer func() {
		close(work)
		wg.Wait()
	}()

	j.logger.Infof("janitor started, workers: %d, batch: %d", j.cfg.Workers, j.cfg.BatchSize)
	idle := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		msgs, err := j.src.Receive(ctx, j.cfg.BatchSize)
		if err != nil && ctx.Err() == nil {
			j.logger.WithError(err).Error("receive cleanup jobs failed")
		}
		if len(msgs) == 0 {
			idle++
			if !sleep(ctx, backoff(idle, j.cfg.PollInitial, j.cfg.PollMax)) {
				return nil
			}
			continue
		}
		idle = 0
		for _, m := range msgs {
			select {
			case work <- m:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (j *Janitor) handle(ctx context.Context, worker int, m storage.Message) {
	ctx, cancel := context.WithTimeout(ctx, j.cfg.JobTimeout)
	defer cancel()

	entry := j.logger.WithFields(log.Fields{"message": m.ID, "worker": worker, "attempt": m.DequeueCount})
	if m.Err != nil {
		entry.WithError(m.Err).Error("dropping malformed cleanup job")
		j.ack(ctx, entry, m)
		return
	}

	entry = entry.WithFields(log.Fields{"user": m.Envelope.UserID, "column": m.Envelope.Job.ColumnID, "tasks": len(m.Envelope.Job.TaskIDs)})
	if err := j.Process(ctx, m.Envelope); err != nil {
		if m.DequeueCount >= j.cfg.MaxDequeue {
			entry.WithError(err).Error("giving up on cleanup job")
			j.ack(ctx, entry, m)
			return
		}
		// Left on the queue; it becomes visible again after the visibility timeout.
		entry.WithError(err).Warn("cleanup job failed")
		return
	}
	j.ack(ctx, entry, m)
	entry.Debug("cleanup job done")
}

func (j *Janitor) ack(ctx context.Context, entry *log.Entry, m storage.Message) {
	if err := j.src.Ack(ctx, m); err != nil {
		entry.WithError(err).Error("ack cleanup job failed")
	}
}

// Process deletes every task of the job and the column if it still exists.
// Documents that are already gone count as deleted.
func (j *Janitor) Process(ctx context.Context, env domain.CleanupEnvelope) error {
	if env.UserID == "" {
		return errors.New("cleanup job without user")
	}
	var errs []error
	for _, id := range env.Job.TaskIDs {
		if err := j.docs.Delete(ctx, baas.Tasks, env.UserID, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			errs = append(errs, fmt.Errorf("task %s: %w", id, err))
		}
	}
	if env.Job.ColumnID != "" {
		if err := j.docs.Delete(ctx, baas.Columns, env.UserID, env.Job.ColumnID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			errs = append(errs, fmt.Errorf("column %s: %w", env.Job.ColumnID, err))
		}
	}
	return errors.Join(errs...)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func backoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 1 {
		return initial
	}
	b := float64(initial) * math.Pow(2, float64(attempt-1))
	if b > float64(max) {
		b = float64(max)
	}
	jitter := 0.2 * b
	return time.Duration(b + (rand.Float64()-0.5)*2*jitter)
}
