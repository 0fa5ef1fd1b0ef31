package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studyon/internal/model"
)

type LessonRepository interface {
	// GetLessonsByCourseID returns the lessons of a course ordered by number.
	GetLessonsByCourseID(ctx context.Context, courseID int64) ([]model.Lesson, error)
	GetLessonByID(ctx context.Context, lessonID int64) (*model.Lesson, error)
	CreateLesson(ctx context.Context, l *model.Lesson) error
}

type lessonRepository struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func NewLessonRepository(db *sql.DB, driver string) LessonRepository {
	return &lessonRepository{db: db, dialect: dialect(driver), now: time.Now}
}

func (r *lessonRepository) GetLessonsByCourseID(ctx context.Context, courseID int64) ([]model.Lesson, error) {
	query := r.dialect.rebind(`
		SELECT id, course_id, title, content, number, created_at, updated_at
		FROM lessons
		WHERE course_id = ?
		ORDER BY number ASC, id ASC
	`)

	rows, err := r.db.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lessons: %w", err)
	}
	defer rows.Close()

	lessons := []model.Lesson{}
	for rows.Next() {
		var l model.Lesson
		if err := rows.Scan(&l.ID, &l.CourseID, &l.Title, &l.Content, &l.Number, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lesson row: %w", err)
		}
		lessons = append(lessons, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lesson rows: %w", err)
	}
	return lessons, nil
}

func (r *lessonRepository) GetLessonByID(ctx context.Context, lessonID int64) (*model.Lesson, error) {
	query := r.dialect.rebind(`
		SELECT id, course_id, title, content, number, created_at, updated_at
		FROM lessons
		WHERE id = ?
	`)

	var l model.Lesson
	err := r.db.QueryRowContext(ctx, query, lessonID).Scan(&l.ID, &l.CourseID, &l.Title, &l.Content, &l.Number, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}
	return &l, nil
}

func (r *lessonRepository) CreateLesson(ctx context.Context, l *model.Lesson) error {
	now := r.now().UTC()
	query := r.dialect.rebind(`
		INSERT INTO lessons (course_id, title, content, number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	if err := r.db.QueryRowContext(ctx, query, l.CourseID, l.Title, l.Content, l.Number, now, now).Scan(&l.ID); err != nil {
		return fmt.Errorf("failed to create lesson: %w", err)
	}
	l.CreatedAt = now
	l.UpdatedAt = now
	return nil
}
