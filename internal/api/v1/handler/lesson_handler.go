package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"studyon/internal/api/v1/dto"
	"studyon/internal/service"
)

// LessonHandler serves lesson content behind the access guard
type LessonHandler struct {
	lessonService service.LessonService
	logger        zerolog.Logger
}

func NewLessonHandler(lessonService service.LessonService, logger zerolog.Logger) *LessonHandler {
	return &LessonHandler{
		lessonService: lessonService,
		logger:        logger.With().Str("handler", "LessonHandler").Logger(),
	}
}

func (h *LessonHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("GET /lessons/{id}", authMw(http.HandlerFunc(h.getLesson)))
}

// getLesson godoc
// @Summary View a lesson
// @Description Returns lesson content when the user is entitled to the course.
// @Tags lessons
// @Produce json
// @Param id path int true "Lesson ID"
// @Success 200 {object} dto.LessonViewResponseDTO
// @Failure 401 {string} string "Unauthorized"
// @Failure 403 {string} string "Access denied"
// @Failure 404 {string} string "Lesson not found"
// @Failure 503 {string} string "Billing service unavailable"
// @Router /lessons/{id} [get]
func (h *LessonHandler) getLesson(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	view, err := h.lessonService.ViewLesson(r.Context(), s, id)
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to retrieve lesson")
		return
	}
	writeJSON(w, http.StatusOK, dto.LessonViewResponseDTO{
		Lesson: dto.NewLessonResponse(&view.Lesson),
		Course: view.Course,
	})
}
