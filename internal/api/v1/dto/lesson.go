package dto

import "studyon/internal/model"

// LessonCreateDTO is used for incoming lesson creation requests
type LessonCreateDTO struct {
	Title   string `json:"title" validate:"required,max=255"`
	Content string `json:"content" validate:"required"`
	Number  int    `json:"number" validate:"min=1,max=9999"`
}

// LessonSummaryDTO lists a lesson without its content
type LessonSummaryDTO struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Number int    `json:"number"`
}

// LessonResponseDTO is a readable lesson
type LessonResponseDTO struct {
	ID       int64  `json:"id"`
	CourseID int64  `json:"course_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Number   int    `json:"number"`
}

// LessonViewResponseDTO is a lesson together with the entitlement that admitted it
type LessonViewResponseDTO struct {
	Lesson LessonResponseDTO       `json:"lesson"`
	Course model.EntitlementRecord `json:"course"`
}

func NewLessonResponse(l *model.Lesson) LessonResponseDTO {
	return LessonResponseDTO{
		ID:       l.ID,
		CourseID: l.CourseID,
		Title:    l.Title,
		Content:  l.Content,
		Number:   l.Number,
	}
}

func NewLessonSummaries(lessons []model.Lesson) []LessonSummaryDTO {
	out := make([]LessonSummaryDTO, 0, len(lessons))
	for _, l := range lessons {
		out = append(out, LessonSummaryDTO{ID: l.ID, Title: l.Title, Number: l.Number})
	}
	return out
}
