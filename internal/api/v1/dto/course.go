package dto

import (
	"time"

	"studyon/internal/model"
)

// CourseCreateDTO is used for incoming course creation requests
type CourseCreateDTO struct {
	Code        string   `json:"code" validate:"required,max=255"`
	Title       string   `json:"title" validate:"required,max=255"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=1000"`
	Type        string   `json:"type" validate:"required,oneof=free rent buy"`
	Price       *float64 `json:"price,omitempty" validate:"omitempty,gt=0"`
}

// CourseResponseDTO is a locally stored course
type CourseResponseDTO struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	SyncStatus  string    `json:"sync_status"`
	SyncError   string    `json:"sync_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewCourseResponse(c *model.Course) CourseResponseDTO {
	return CourseResponseDTO{
		ID:          c.ID,
		Code:        c.Code,
		Title:       c.Title,
		Description: c.Description,
		SyncStatus:  c.SyncStatus,
		SyncError:   c.SyncError,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// CourseDetailResponseDTO is the course page: entitlement, lessons and balance
type CourseDetailResponseDTO struct {
	Course  model.EntitlementRecord `json:"course"`
	Lessons []LessonSummaryDTO      `json:"lessons"`
	Balance float64                 `json:"balance"`
}

// PaymentResponseDTO is returned after a successful payment
type PaymentResponseDTO struct {
	CourseID  int64      `json:"course_id"`
	Code      string     `json:"code"`
	Type      string     `json:"type"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
