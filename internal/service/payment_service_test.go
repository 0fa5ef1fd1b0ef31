package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyon/internal/billing"
	"studyon/internal/model"
	"studyon/internal/repository"
)

type published struct {
	topic   string
	payload []byte
	attrs   map[string]string
}

type fakePublisher struct {
	messages []published
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload []byte, attrs map[string]string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, published{topic: topic, payload: payload, attrs: attrs})
	return "msg-1", nil
}

func (p *fakePublisher) Close() error { return nil }

func TestPay(t *testing.T) {
	expires := time.Date(2026, 11, 18, 0, 0, 0, 0, time.UTC)
	fb := &fakeBilling{payResult: &billing.PaymentResult{Success: true, CourseType: model.CourseTypeRent, ExpiresAt: &expires}}
	pub := &fakePublisher{}

	courses := repository.NewCourseRepo(newTestDB(t), repository.DriverSQLite)
	course := seedCourses(t, courses, "go-rent")[0]
	svc := NewPaymentService(fb, courses, pub, "course-payments", zerolog.Nop())

	receipt, err := svc.Pay(context.Background(), testSession(t), course.ID)
	require.NoError(t, err)
	assert.Equal(t, "go-rent", receipt.Code)
	assert.Equal(t, model.CourseTypeRent, receipt.Type)
	assert.Equal(t, &expires, receipt.ExpiresAt)

	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	assert.Equal(t, "course-payments", msg.topic)
	assert.Equal(t, EventCoursePaid, msg.attrs["event"])

	var event CoursePaidEvent
	require.NoError(t, json.Unmarshal(msg.payload, &event))
	assert.Equal(t, "student@example.com", event.Username)
	assert.Equal(t, course.ID, event.CourseID)
	assert.Equal(t, model.CourseTypeRent, event.Type)
}

func TestPayRejected(t *testing.T) {
	fb := &fakeBilling{payErr: &billing.Error{Op: "pay_course", Kind: billing.KindRejected, Message: "Insufficient funds"}}
	pub := &fakePublisher{}

	courses := repository.NewCourseRepo(newTestDB(t), repository.DriverSQLite)
	course := seedCourses(t, courses, "go-buy")[0]
	svc := NewPaymentService(fb, courses, pub, "course-payments", zerolog.Nop())

	_, err := svc.Pay(context.Background(), testSession(t), course.ID)
	assert.ErrorIs(t, err, billing.ErrRejected)
	assert.Equal(t, "Insufficient funds", billing.UserMessage(err))
	assert.Empty(t, pub.messages)
}

func TestPayUnknownCourse(t *testing.T) {
	fb := &fakeBilling{}
	courses := repository.NewCourseRepo(newTestDB(t), repository.DriverSQLite)
	svc := NewPaymentService(fb, courses, nil, "course-payments", zerolog.Nop())

	_, err := svc.Pay(context.Background(), testSession(t), 42)
	assert.ErrorIs(t, err, ErrCourseNotFound)
	assert.Zero(t, fb.callCount("pay_course"))
}

func TestPayPublishFailureDoesNotFailPayment(t *testing.T) {
	fb := &fakeBilling{payResult: &billing.PaymentResult{Success: true, CourseType: model.CourseTypeBuy}}
	pub := &fakePublisher{err: errors.New("pubsub unavailable")}

	courses := repository.NewCourseRepo(newTestDB(t), repository.DriverSQLite)
	course := seedCourses(t, courses, "go-buy")[0]
	svc := NewPaymentService(fb, courses, pub, "course-payments", zerolog.Nop())

	receipt, err := svc.Pay(context.Background(), testSession(t), course.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CourseTypeBuy, receipt.Type)
}
