package service

import (
	"context"

	"github.com/rs/zerolog"

	"studyon/internal/model"
	"studyon/internal/repository"
	"studyon/internal/session"
)

// LessonView is a lesson the user is allowed to read.
type LessonView struct {
	Lesson model.Lesson
	Course model.EntitlementRecord
}

type LessonService interface {
	// ViewLesson returns the lesson when the guard admits the session's
	// user, ErrAccessDenied otherwise.
	ViewLesson(ctx context.Context, s *session.Session, lessonID int64) (*LessonView, error)
}

type lessonService struct {
	lessons  repository.LessonRepository
	courses  repository.CourseRepository
	resolver EntitlementResolver
	guard    *AccessGuard
	metrics  *Metrics
	logger   zerolog.Logger
}

func NewLessonService(
	lessons repository.LessonRepository,
	courses repository.CourseRepository,
	resolver EntitlementResolver,
	guard *AccessGuard,
	metrics *Metrics,
	logger zerolog.Logger,
) LessonService {
	return &lessonService{
		lessons:  lessons,
		courses:  courses,
		resolver: resolver,
		guard:    guard,
		metrics:  metrics,
		logger:   logger.With().Str("service", "LessonService").Logger(),
	}
}

func (l *lessonService) ViewLesson(ctx context.Context, s *session.Session, lessonID int64) (*LessonView, error) {
	if s == nil {
		return nil, session.ErrSessionInvalid
	}

	lesson, err := l.lessons.GetLessonByID(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson == nil {
		return nil, ErrLessonNotFound
	}
	course, err := l.courses.GetCourseByID(ctx, lesson.CourseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}

	// Administrators read any lesson without asking billing.
	if l.guard.Bypasses(s) {
		return &LessonView{Lesson: *lesson, Course: baseRecord(*course)}, nil
	}

	rec, err := l.resolver.ResolveCourse(ctx, s, *course)
	if err != nil {
		return nil, err
	}
	if !l.guard.CanViewLesson(rec) {
		l.metrics.denied()
		l.logger.Info().
			Str("username", s.Claims.Username).
			Int64("lesson_id", lessonID).
			Str("course_type", string(rec.Type)).
			Msg("Lesson access denied")
		return nil, ErrAccessDenied
	}
	return &LessonView{Lesson: *lesson, Course: rec}, nil
}
