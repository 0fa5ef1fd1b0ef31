package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"studyon/internal/billing"
	"studyon/internal/model"
	"studyon/internal/pubsub"
	"studyon/internal/repository"
	"studyon/internal/session"
)

const EventCoursePaid = "course.paid"

type CoursePayer interface {
	PayCourse(ctx context.Context, token, code string) (*billing.PaymentResult, error)
}

// PaymentReceipt is returned after billing accepted a payment.
type PaymentReceipt struct {
	CourseID  int64            `json:"course_id"`
	Code      string           `json:"code"`
	Type      model.CourseType `json:"type"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
}

// CoursePaidEvent is published after a successful payment.
type CoursePaidEvent struct {
	Event     string           `json:"event"`
	Username  string           `json:"username"`
	CourseID  int64            `json:"course_id"`
	Code      string           `json:"code"`
	Type      model.CourseType `json:"type"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	PaidAt    time.Time        `json:"paid_at"`
}

type PaymentService interface {
	Pay(ctx context.Context, s *session.Session, courseID int64) (*PaymentReceipt, error)
}

type paymentService struct {
	billing   CoursePayer
	courses   repository.CourseRepository
	publisher pubsub.Publisher
	topic     string
	logger    zerolog.Logger
	now       func() time.Time
}

func NewPaymentService(b CoursePayer, courses repository.CourseRepository, publisher pubsub.Publisher, topic string, logger zerolog.Logger) PaymentService {
	return &paymentService{
		billing:   b,
		courses:   courses,
		publisher: publisher,
		topic:     topic,
		logger:    logger.With().Str("service", "PaymentService").Logger(),
		now:       time.Now,
	}
}

// Pay buys or rents the course. Billing refusals match billing.ErrRejected.
func (p *paymentService) Pay(ctx context.Context, s *session.Session, courseID int64) (*PaymentReceipt, error) {
	if s == nil {
		return nil, session.ErrSessionInvalid
	}
	course, err := p.courses.GetCourseByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}

	result, err := p.billing.PayCourse(ctx, s.AccessToken, course.Code)
	if err != nil {
		return nil, fmt.Errorf("paying for course %q: %w", course.Code, err)
	}

	receipt := &PaymentReceipt{
		CourseID:  course.ID,
		Code:      course.Code,
		Type:      result.CourseType,
		ExpiresAt: result.ExpiresAt,
	}
	p.logger.Info().
		Str("username", s.Claims.Username).
		Str("code", course.Code).
		Str("course_type", string(result.CourseType)).
		Msg("Course paid")

	p.publish(ctx, s, receipt)
	return receipt, nil
}

// publish is best effort; the payment already happened in billing.
func (p *paymentService) publish(ctx context.Context, s *session.Session, receipt *PaymentReceipt) {
	if p.publisher == nil {
		return
	}
	payload, err := json.Marshal(CoursePaidEvent{
		Event:     EventCoursePaid,
		Username:  s.Claims.Username,
		CourseID:  receipt.CourseID,
		Code:      receipt.Code,
		Type:      receipt.Type,
		ExpiresAt: receipt.ExpiresAt,
		PaidAt:    p.now().UTC(),
	})
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to marshal payment event")
		return
	}
	attrs := map[string]string{"event": EventCoursePaid, "course_code": receipt.Code}
	if _, err := p.publisher.Publish(ctx, p.topic, payload, attrs); err != nil {
		p.logger.Error().Err(err).Str("topic", p.topic).Str("code", receipt.Code).Msg("Failed to publish payment event")
	}
}
