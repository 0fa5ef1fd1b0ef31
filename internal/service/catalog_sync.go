package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studyon/internal/billing"
	"studyon/internal/model"
	"studyon/internal/repository"
	"studyon/internal/session"
)

// CourseRegistrar creates courses in billing.
type CourseRegistrar interface {
	CreateCourse(ctx context.Context, token string, course billing.NewCourse) error
}

// CatalogSyncer gets a locally created course registered with billing.
type CatalogSyncer interface {
	Schedule(ctx context.Context, s *session.Session, job model.CatalogSyncJob) error
}

// NewSyncJob builds the job registering course with billing.
func NewSyncJob(course *model.Course, courseType model.CourseType, price *float64) model.CatalogSyncJob {
	return model.CatalogSyncJob{
		JobID:    uuid.NewString(),
		CourseID: course.ID,
		Code:     course.Code,
		Title:    course.Title,
		Type:     courseType,
		Price:    price,
	}
}

// RegisterCourse registers the job's course with billing.
func RegisterCourse(ctx context.Context, b CourseRegistrar, token string, job model.CatalogSyncJob) error {
	err := b.CreateCourse(ctx, token, billing.NewCourse{
		Code:  job.Code,
		Title: job.Title,
		Type:  job.Type,
		Price: job.Price,
	})
	if err != nil {
		return fmt.Errorf("registering course %q with billing: %w", job.Code, err)
	}
	return nil
}

// MarkSynced records that the job's course is registered with billing.
func MarkSynced(ctx context.Context, courses repository.CourseRepository, job model.CatalogSyncJob) error {
	if err := courses.UpdateSyncStatus(ctx, job.CourseID, model.SyncStatusSynced, ""); err != nil {
		return fmt.Errorf("marking course %q synced: %w", job.Code, err)
	}
	return nil
}

// directSyncer pushes to billing within the request, using the caller's token.
type directSyncer struct {
	billing CourseRegistrar
	courses repository.CourseRepository
	logger  zerolog.Logger
}

func NewDirectCatalogSyncer(b CourseRegistrar, courses repository.CourseRepository, logger zerolog.Logger) CatalogSyncer {
	return &directSyncer{
		billing: b,
		courses: courses,
		logger:  logger.With().Str("service", "DirectCatalogSyncer").Logger(),
	}
}

// Schedule never fails the caller on a billing error: the course stays
// local, is marked failed and resolves as unknown until synced.
func (d *directSyncer) Schedule(ctx context.Context, s *session.Session, job model.CatalogSyncJob) error {
	if err := RegisterCourse(ctx, d.billing, s.AccessToken, job); err != nil {
		d.logger.Error().Err(err).Str("code", job.Code).Msg("Failed to register course with billing")
		if uErr := d.courses.UpdateSyncStatus(ctx, job.CourseID, model.SyncStatusFailed, billing.UserMessage(err)); uErr != nil {
			return uErr
		}
		return nil
	}
	d.logger.Info().Str("code", job.Code).Msg("Course registered with billing")
	return MarkSynced(ctx, d.courses, job)
}

// JobQueue is implemented by pgmq.Client.
type JobQueue interface {
	Send(ctx context.Context, queue string, payload []byte) error
}

type queueSyncer struct {
	queue     JobQueue
	queueName string
	logger    zerolog.Logger
}

// NewQueueCatalogSyncer enqueues jobs for the catalog sync worker.
func NewQueueCatalogSyncer(q JobQueue, queueName string, logger zerolog.Logger) CatalogSyncer {
	return &queueSyncer{
		queue:     q,
		queueName: queueName,
		logger:    logger.With().Str("service", "QueueCatalogSyncer").Logger(),
	}
}

func (q *queueSyncer) Schedule(ctx context.Context, _ *session.Session, job model.CatalogSyncJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling sync job: %w", err)
	}
	if err := q.queue.Send(ctx, q.queueName, payload); err != nil {
		return fmt.Errorf("enqueueing sync job: %w", err)
	}
	q.logger.Info().Str("job_id", job.JobID).Str("code", job.Code).Msg("Catalog sync job enqueued")
	return nil
}
