// Package catalogsync registers locally created courses with billing. Jobs
// arrive through a pgmq queue; failures are retried with exponential
// backoff and end up in a dead-letter queue.
package catalogsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"studyon/internal/billing"
	"studyon/internal/config"
	"studyon/internal/model"
	"studyon/internal/pgmq"
	"studyon/internal/repository"
	"studyon/internal/service"
)

// Queue is implemented by pgmq.Client.
type Queue interface {
	Send(ctx context.Context, queue string, payload []byte) error
	ReadWithPoll(ctx context.Context, queue string, visibilitySec, maxMessages, pollSec int) ([]*pgmq.Message, error)
	Delete(ctx context.Context, queue string, msgIDs []int64) error
}

// Options tunes the worker loop.
type Options struct {
	Queue           string
	DeadLetterQueue string
	PollTimeoutSec  int
	PollMaxMsg      int
	MaxRetries      int
	BackoffInitial  time.Duration
	BackoffMax      time.Duration
}

// OptionsFromConfig reads the catalog sync settings.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Queue:           cfg.CatalogSyncQueueName,
		DeadLetterQueue: cfg.CatalogSyncDeadLetterQueueName,
		PollTimeoutSec:  cfg.CatalogSyncPollTimeoutSec,
		PollMaxMsg:      cfg.CatalogSyncPollMaxMsg,
		MaxRetries:      cfg.CatalogSyncMaxRetries,
		BackoffInitial:  time.Duration(cfg.CatalogSyncBackoffInitialSec) * time.Second,
		BackoffMax:      time.Duration(cfg.CatalogSyncBackoffMaxSec) * time.Second,
	}
}

// Worker consumes catalog sync jobs.
type Worker struct {
	queue   Queue
	billing service.CourseRegistrar
	courses repository.CourseRepository
	tokens  TokenSource
	opts    Options
	logger  zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewWorker(q Queue, b service.CourseRegistrar, courses repository.CourseRepository, tokens TokenSource, opts Options, logger zerolog.Logger) *Worker {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.PollMaxMsg < 1 {
		opts.PollMaxMsg = 1
	}
	return &Worker{
		queue:   q,
		billing: b,
		courses: courses,
		tokens:  tokens,
		opts:    opts,
		logger:  logger.With().Str("service", "CatalogSync").Logger(),
		sleep:   sleepContext,
	}
}

// Run starts the catalog sync orchestrator.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Str("queue", w.opts.Queue).Str("dlq", w.opts.DeadLetterQueue).Msg("Starting catalog sync orchestrator")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Shutting down catalog sync orchestrator")
			return nil
		default:
		}

		msgs, err := w.queue.ReadWithPoll(ctx, w.opts.Queue, w.visibilitySec(), w.opts.PollMaxMsg, w.opts.PollTimeoutSec)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error().Err(err).Msg("Error reading catalog sync queue")
			_ = w.sleep(ctx, time.Second)
			continue
		}
		for _, msg := range msgs {
			w.Process(ctx, msg)
		}
	}
}

// visibilitySec keeps a message hidden for longer than one full retry cycle.
func (w *Worker) visibilitySec() int {
	total := time.Duration(0)
	backoff := w.opts.BackoffInitial
	for i := 0; i < w.opts.MaxRetries; i++ {
		total += backoff + 10*time.Second
		backoff = nextBackoff(backoff, w.opts.BackoffMax)
	}
	return int(total.Seconds()) + 30
}

// Process handles one message and always acknowledges it: either the
// course is synced, or the job is moved to the dead-letter queue.
func (w *Worker) Process(ctx context.Context, msg *pgmq.Message) {
	logger := w.logger.With().Int64("msg_id", msg.ID).Logger()

	var job model.CatalogSyncJob
	if err := json.Unmarshal(msg.Data, &job); err != nil || job.CourseID == 0 || job.Code == "" {
		logger.Error().Err(err).Msg("Failed to unmarshal catalog sync payload; deleting message")
		w.ack(ctx, msg)
		return
	}
	logger = logger.With().Str("job_id", job.JobID).Str("code", job.Code).Logger()
	logger.Info().Int("read_count", msg.ReadCount).Msg("Received catalog sync job")

	registered, syncErr := w.push(ctx, logger, job)
	if syncErr == nil {
		w.ack(ctx, msg)
		logger.Info().Msg("Course registered with billing")
		return
	}
	if ctx.Err() != nil {
		// Shutting down; the message becomes visible again after its timeout.
		return
	}

	stage := stageRegister
	if registered {
		// Billing has the course; only the local status is behind.
		stage = stageMarkSynced
	} else if err := w.courses.UpdateSyncStatus(ctx, job.CourseID, model.SyncStatusFailed, billing.UserMessage(syncErr)); err != nil {
		logger.Error().Err(err).Msg("Failed to mark course sync as failed")
	}
	if err := w.deadLetter(ctx, job, stage, syncErr); err != nil {
		logger.Error().Err(err).Str("dlq", w.opts.DeadLetterQueue).Msg("Failed to send message to dead-letter queue")
	}
	w.ack(ctx, msg)
	logger.Warn().Err(syncErr).Int("attempts", w.opts.MaxRetries).Msg("Giving up on catalog sync job; moved to DLQ")
}

const (
	stageRegister   = "register"
	stageMarkSynced = "mark_synced"
)

// push registers the course with billing and then marks it synced, retrying
// each step on its own. registered reports whether billing accepted the
// course, so a failed status update never registers it twice.
func (w *Worker) push(ctx context.Context, logger zerolog.Logger, job model.CatalogSyncJob) (registered bool, err error) {
	backoff := w.opts.BackoffInitial
	var lastErr error
	for attempt := 1; attempt <= w.opts.MaxRetries; attempt++ {
		if !registered {
			lastErr = w.register(ctx, job)
			registered = lastErr == nil
		}
		if registered {
			lastErr = service.MarkSynced(ctx, w.courses, job)
		}
		if lastErr == nil {
			return true, nil
		}

		switch {
		case errors.Is(lastErr, billing.ErrRejected):
			// Billing refused the course itself; retrying cannot help.
			return registered, lastErr
		case errors.Is(lastErr, billing.ErrUnauthorized):
			w.tokens.Invalidate()
		}
		if attempt == w.opts.MaxRetries {
			break
		}
		logger.Error().Err(lastErr).Int("attempt", attempt).Bool("registered", registered).Dur("backoff", backoff).Msg("Catalog sync failed, retrying")
		if err := w.sleep(ctx, backoff); err != nil {
			return registered, err
		}
		backoff = nextBackoff(backoff, w.opts.BackoffMax)
	}
	return registered, lastErr
}

func (w *Worker) register(ctx context.Context, job model.CatalogSyncJob) error {
	token, err := w.tokens.Token(ctx)
	if err != nil {
		return err
	}
	return service.RegisterCourse(ctx, w.billing, token, job)
}

type deadLetterMessage struct {
	Job    model.CatalogSyncJob `json:"job"`
	Stage  string               `json:"stage"`
	Error  string               `json:"error"`
	Failed time.Time            `json:"failed_at"`
}

func (w *Worker) deadLetter(ctx context.Context, job model.CatalogSyncJob, stage string, cause error) error {
	if w.opts.DeadLetterQueue == "" {
		return nil
	}
	payload, err := json.Marshal(deadLetterMessage{Job: job, Stage: stage, Error: cause.Error(), Failed: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshaling dead letter: %w", err)
	}
	return w.queue.Send(ctx, w.opts.DeadLetterQueue, payload)
}

func (w *Worker) ack(ctx context.Context, msg *pgmq.Message) {
	if err := w.queue.Delete(ctx, w.opts.Queue, []int64{msg.ID}); err != nil {
		w.logger.Error().Err(err).Int64("msg_id", msg.ID).Msg("Error deleting catalog sync message")
	}
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next <= 0 {
		next = time.Second
	}
	if limit > 0 && next > limit {
		next = limit
	}
	return next
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
