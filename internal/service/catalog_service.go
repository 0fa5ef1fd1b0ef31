package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"studyon/internal/billing"
	"studyon/internal/model"
	"studyon/internal/repository"
	"studyon/internal/session"
)

// ProfileReader returns the billing profile behind a token.
type ProfileReader interface {
	CurrentUser(ctx context.Context, token string) (*billing.Profile, error)
}

// CourseDetail is a course page: the entitlement, ordered lessons and the
// user's balance.
type CourseDetail struct {
	Course  model.EntitlementRecord
	Lessons []model.Lesson
	Balance float64
}

// NewCourseInput describes a course created by an administrator.
type NewCourseInput struct {
	Code        string
	Title       string
	Description string
	Type        model.CourseType
	Price       *float64
}

// NewLessonInput describes a lesson created by an administrator.
type NewLessonInput struct {
	Title   string
	Content string
	Number  int
}

// CatalogService defines the interface for catalog operations
type CatalogService interface {
	// ListCourses resolves every local course for the session's user
	ListCourses(ctx context.Context, s *session.Session) ([]model.EntitlementRecord, error)
	CourseDetail(ctx context.Context, s *session.Session, courseID int64) (*CourseDetail, error)
	CreateCourse(ctx context.Context, s *session.Session, in NewCourseInput) (*model.Course, error)
	CreateLesson(ctx context.Context, courseID int64, in NewLessonInput) (*model.Lesson, error)
}

type catalogService struct {
	courses  repository.CourseRepository
	lessons  repository.LessonRepository
	resolver EntitlementResolver
	profiles ProfileReader
	syncer   CatalogSyncer
	logger   zerolog.Logger
}

func NewCatalogService(
	courses repository.CourseRepository,
	lessons repository.LessonRepository,
	resolver EntitlementResolver,
	profiles ProfileReader,
	syncer CatalogSyncer,
	logger zerolog.Logger,
) CatalogService {
	return &catalogService{
		courses:  courses,
		lessons:  lessons,
		resolver: resolver,
		profiles: profiles,
		syncer:   syncer,
		logger:   logger.With().Str("service", "CatalogService").Logger(),
	}
}

func (c *catalogService) ListCourses(ctx context.Context, s *session.Session) ([]model.EntitlementRecord, error) {
	courses, err := c.courses.ListCourses(ctx)
	if err != nil {
		return nil, err
	}
	return c.resolver.ResolveAll(ctx, s, courses)
}

func (c *catalogService) CourseDetail(ctx context.Context, s *session.Session, courseID int64) (*CourseDetail, error) {
	if s == nil {
		return nil, session.ErrSessionInvalid
	}
	course, err := c.courses.GetCourseByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}

	detail := &CourseDetail{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := c.resolver.ResolveCourse(gctx, s, *course)
		detail.Course = rec
		return err
	})
	g.Go(func() error {
		lessons, err := c.lessons.GetLessonsByCourseID(gctx, course.ID)
		detail.Lessons = lessons
		return err
	})
	g.Go(func() error {
		profile, err := c.profiles.CurrentUser(gctx, s.AccessToken)
		if err != nil {
			return fmt.Errorf("loading balance: %w", err)
		}
		detail.Balance = profile.Balance
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return detail, nil
}

func (c *catalogService) CreateCourse(ctx context.Context, s *session.Session, in NewCourseInput) (*model.Course, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unsupported course type %q", ErrInvalidInput, in.Type)
	}
	if in.Type == model.CourseTypeFree {
		in.Price = nil
	} else if in.Price == nil || *in.Price <= 0 {
		return nil, fmt.Errorf("%w: %s course needs a positive price", ErrInvalidInput, in.Type)
	}

	course := &model.Course{
		Code:        in.Code,
		Title:       in.Title,
		Description: in.Description,
		SyncStatus:  model.SyncStatusPending,
	}
	err := c.courses.CreateCourse(ctx, course)
	switch {
	case err == nil:
		c.logger.Info().Int64("course_id", course.ID).Str("code", course.Code).Msg("Course created")
	case errors.Is(err, repository.ErrDuplicate):
		// A course whose sync failed is registered again instead of refused.
		existing, gErr := c.courses.GetCourseByCode(ctx, in.Code)
		if gErr != nil {
			return nil, gErr
		}
		if existing == nil || existing.SyncStatus != model.SyncStatusFailed {
			return nil, fmt.Errorf("%w: course code %q is taken", ErrInvalidInput, in.Code)
		}
		if err := c.courses.UpdateSyncStatus(ctx, existing.ID, model.SyncStatusPending, ""); err != nil {
			return nil, err
		}
		course = existing
		c.logger.Info().Int64("course_id", course.ID).Str("code", course.Code).Msg("Retrying catalog sync")
	default:
		return nil, err
	}

	if err := c.syncer.Schedule(ctx, s, NewSyncJob(course, in.Type, in.Price)); err != nil {
		c.logger.Error().Err(err).Str("code", course.Code).Msg("Failed to schedule catalog sync")
		if uErr := c.courses.UpdateSyncStatus(ctx, course.ID, model.SyncStatusFailed, "catalog sync could not be scheduled"); uErr != nil {
			return nil, fmt.Errorf("scheduling catalog sync: %w", errors.Join(err, uErr))
		}
	}

	// The syncer may have changed the sync status.
	if fresh, err := c.courses.GetCourseByID(ctx, course.ID); err == nil && fresh != nil {
		course = fresh
	}
	return course, nil
}

func (c *catalogService) CreateLesson(ctx context.Context, courseID int64, in NewLessonInput) (*model.Lesson, error) {
	if in.Number < 1 || in.Number > model.MaxLessonNumber {
		return nil, fmt.Errorf("%w: lesson number must be between 1 and %d", ErrInvalidInput, model.MaxLessonNumber)
	}
	course, err := c.courses.GetCourseByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}

	lesson := &model.Lesson{
		CourseID: course.ID,
		Title:    in.Title,
		Content:  in.Content,
		Number:   in.Number,
	}
	if err := c.lessons.CreateLesson(ctx, lesson); err != nil {
		return nil, err
	}
	return lesson, nil
}
