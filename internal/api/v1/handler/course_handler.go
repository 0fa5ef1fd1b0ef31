package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"studyon/internal/api/v1/dto"
	"studyon/internal/model"
	"studyon/internal/service"
)

// CourseHandler handles course-related endpoints
type CourseHandler struct {
	catalogService service.CatalogService
	paymentService service.PaymentService
	validate       *validator.Validate
	logger         zerolog.Logger
}

// NewCourseHandler creates a new CourseHandler
func NewCourseHandler(catalogService service.CatalogService, paymentService service.PaymentService, validate *validator.Validate, logger zerolog.Logger) *CourseHandler {
	return &CourseHandler{
		catalogService: catalogService,
		paymentService: paymentService,
		validate:       validate,
		logger:         logger.With().Str("handler", "CourseHandler").Logger(),
	}
}

// RegisterRoutes mounts course routes. adminMw runs after authMw.
func (h *CourseHandler) RegisterRoutes(mux *http.ServeMux, authMw, adminMw func(http.Handler) http.Handler) {
	mux.Handle("GET /courses", authMw(http.HandlerFunc(h.listCourses)))
	mux.Handle("POST /courses", authMw(adminMw(http.HandlerFunc(h.createCourse))))
	mux.Handle("GET /courses/{id}", authMw(http.HandlerFunc(h.getCourse)))
	mux.Handle("POST /courses/{id}/pay", authMw(http.HandlerFunc(h.payCourse)))
	mux.Handle("POST /courses/{id}/lessons", authMw(adminMw(http.HandlerFunc(h.createLesson))))
}

// listCourses godoc
// @Summary List courses
// @Description Lists every local course with the user's entitlement and the action to offer.
// @Tags courses
// @Produce json
// @Success 200 {array} model.EntitlementRecord
// @Failure 401 {string} string "Unauthorized"
// @Failure 503 {string} string "Billing service unavailable"
// @Router /courses [get]
func (h *CourseHandler) listCourses(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionOrUnauthorized(w, r)
	if !ok {
		return
	}
	records, err := h.catalogService.ListCourses(r.Context(), s)
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to list courses")
		return
	}
	if records == nil {
		records = []model.EntitlementRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// createCourse godoc
// @Summary Create a new course
// @Description Stores the course locally and registers it with billing (admin only).
// @Tags courses
// @Accept json
// @Produce json
// @Param course body dto.CourseCreateDTO true "Course creation request"
// @Success 201 {object} dto.CourseResponseDTO
// @Failure 400 {string} string "Invalid JSON payload or validation failed"
// @Failure 401 {string} string "Unauthorized"
// @Failure 403 {string} string "Forbidden"
// @Failure 500 {string} string "Failed to create course"
// @Router /courses [post]
func (h *CourseHandler) createCourse(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req dto.CourseCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	description := ""
	if req.Description != nil {
		description = *req.Description
	}

	created, err := h.catalogService.CreateCourse(r.Context(), s, service.NewCourseInput{
		Code:        req.Code,
		Title:       req.Title,
		Description: description,
		Type:        model.CourseType(req.Type),
		Price:       req.Price,
	})
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to create course")
		return
	}
	writeJSON(w, http.StatusCreated, dto.NewCourseResponse(created))
}

// getCourse godoc
// @Summary Get a course
// @Description Returns the course entitlement, its ordered lessons and the user's balance.
// @Tags courses
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} dto.CourseDetailResponseDTO
// @Failure 401 {string} string "Unauthorized"
// @Failure 404 {string} string "Course not found"
// @Failure 503 {string} string "Billing service unavailable"
// @Router /courses/{id} [get]
func (h *CourseHandler) getCourse(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	detail, err := h.catalogService.CourseDetail(r.Context(), s, id)
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to retrieve course")
		return
	}
	writeJSON(w, http.StatusOK, dto.CourseDetailResponseDTO{
		Course:  detail.Course,
		Lessons: dto.NewLessonSummaries(detail.Lessons),
		Balance: detail.Balance,
	})
}

// payCourse godoc
// @Summary Pay for a course
// @Description Buys or rents the course through billing.
// @Tags courses
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} dto.PaymentResponseDTO
// @Failure 401 {string} string "Unauthorized"
// @Failure 404 {string} string "Course not found"
// @Failure 409 {string} string "Payment rejected by billing"
// @Failure 503 {string} string "Billing service unavailable"
// @Router /courses/{id}/pay [post]
func (h *CourseHandler) payCourse(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	receipt, err := h.paymentService.Pay(r.Context(), s, id)
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to pay for course")
		return
	}
	writeJSON(w, http.StatusOK, dto.PaymentResponseDTO{
		CourseID:  receipt.CourseID,
		Code:      receipt.Code,
		Type:      string(receipt.Type),
		ExpiresAt: receipt.ExpiresAt,
	})
}

// createLesson godoc
// @Summary Add a lesson
// @Description Adds a lesson to a course (admin only).
// @Tags courses
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param lesson body dto.LessonCreateDTO true "Lesson creation request"
// @Success 201 {object} dto.LessonResponseDTO
// @Failure 400 {string} string "Invalid JSON payload or validation failed"
// @Failure 403 {string} string "Forbidden"
// @Failure 404 {string} string "Course not found"
// @Router /courses/{id}/lessons [post]
func (h *CourseHandler) createLesson(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req dto.LessonCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	lesson, err := h.catalogService.CreateLesson(r.Context(), id, service.NewLessonInput{
		Title:   req.Title,
		Content: req.Content,
		Number:  req.Number,
	})
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to create lesson")
		return
	}
	writeJSON(w, http.StatusCreated, dto.NewLessonResponse(lesson))
}
