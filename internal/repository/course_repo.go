package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studyon/internal/model"
)

// CourseRepository defines the interface for interacting with the local catalog
type CourseRepository interface {
	// ListCourses returns every course in catalog order
	ListCourses(ctx context.Context) ([]model.Course, error)
	// GetCourseByID returns nil when no course has the id
	GetCourseByID(ctx context.Context, id int64) (*model.Course, error)
	GetCourseByCode(ctx context.Context, code string) (*model.Course, error)
	// CreateCourse inserts c and fills its generated fields. A taken code
	// yields ErrDuplicate.
	CreateCourse(ctx context.Context, c *model.Course) error
	UpdateSyncStatus(ctx context.Context, id int64, status, syncErr string) error
}

type courseRepo struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// NewCourseRepo creates a new CourseRepository
func NewCourseRepo(db *sql.DB, driver string) CourseRepository {
	return &courseRepo{db: db, dialect: dialect(driver), now: time.Now}
}

const courseColumns = `id, code, title, description, sync_status, sync_error, created_at, updated_at`

func scanCourse(row interface{ Scan(...any) error }) (*model.Course, error) {
	var c model.Course
	if err := row.Scan(
		&c.ID,
		&c.Code,
		&c.Title,
		&c.Description,
		&c.SyncStatus,
		&c.SyncError,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *courseRepo) ListCourses(ctx context.Context) ([]model.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	defer rows.Close()

	courses := []model.Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning course: %w", err)
		}
		courses = append(courses, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	return courses, nil
}

func (r *courseRepo) GetCourseByID(ctx context.Context, id int64) (*model.Course, error) {
	query := r.dialect.rebind(`SELECT ` + courseColumns + ` FROM courses WHERE id = ?`)
	c, err := scanCourse(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting course %d: %w", id, err)
	}
	return c, nil
}

func (r *courseRepo) GetCourseByCode(ctx context.Context, code string) (*model.Course, error) {
	query := r.dialect.rebind(`SELECT ` + courseColumns + ` FROM courses WHERE code = ?`)
	c, err := scanCourse(r.db.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting course %q: %w", code, err)
	}
	return c, nil
}

func (r *courseRepo) CreateCourse(ctx context.Context, c *model.Course) error {
	now := r.now().UTC()
	if c.SyncStatus == "" {
		c.SyncStatus = model.SyncStatusPending
	}
	query := r.dialect.rebind(`
		INSERT INTO courses (code, title, description, sync_status, sync_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := r.db.QueryRowContext(ctx, query, c.Code, c.Title, c.Description, c.SyncStatus, c.SyncError, now, now).Scan(&c.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("course code %q: %w", c.Code, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("creating course: %w", err)
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (r *courseRepo) UpdateSyncStatus(ctx context.Context, id int64, status, syncErr string) error {
	query := r.dialect.rebind(`UPDATE courses SET sync_status = ?, sync_error = ?, updated_at = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, status, syncErr, r.now().UTC(), id); err != nil {
		return fmt.Errorf("updating sync status of course %d: %w", id, err)
	}
	return nil
}
