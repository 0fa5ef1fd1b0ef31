package catalogsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyon/internal/billing"
	"studyon/internal/model"
	"studyon/internal/pgmq"
	"studyon/internal/repository"
	"studyon/internal/session"
)

type fakeQueue struct {
	mu      sync.Mutex
	sent    map[string][][]byte
	deleted []int64
}

func (q *fakeQueue) Send(_ context.Context, queue string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sent == nil {
		q.sent = map[string][][]byte{}
	}
	q.sent[queue] = append(q.sent[queue], payload)
	return nil
}

func (q *fakeQueue) ReadWithPoll(context.Context, string, int, int, int) ([]*pgmq.Message, error) {
	return nil, nil
}

func (q *fakeQueue) Delete(_ context.Context, _ string, ids []int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, ids...)
	return nil
}

type fakeRegistrar struct {
	errs  []error
	calls int
	seen  []string
}

func (r *fakeRegistrar) CreateCourse(_ context.Context, token string, _ billing.NewCourse) error {
	r.calls++
	r.seen = append(r.seen, token)
	if len(r.errs) == 0 {
		return nil
	}
	err := r.errs[0]
	r.errs = r.errs[1:]
	return err
}

type fakeTokens struct {
	token       string
	invalidated int
}

func (f *fakeTokens) Token(context.Context) (string, error) { return f.token, nil }
func (f *fakeTokens) Invalidate()                           { f.invalidated++ }

func newCourseRepo(t *testing.T) repository.CourseRepository {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := repository.Open(ctx, repository.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.Migrate(ctx, db, repository.DriverSQLite))
	return repository.NewCourseRepo(db, repository.DriverSQLite)
}

func newTestWorker(t *testing.T, reg *fakeRegistrar) (*Worker, *fakeQueue, *fakeTokens, repository.CourseRepository, model.CatalogSyncJob) {
	t.Helper()
	courses := newCourseRepo(t)
	course := &model.Course{Code: "go-rent", Title: "Go", SyncStatus: model.SyncStatusPending}
	require.NoError(t, courses.CreateCourse(context.Background(), course))

	price := 99.9
	job := model.CatalogSyncJob{JobID: "job-1", CourseID: course.ID, Code: course.Code, Title: course.Title, Type: model.CourseTypeRent, Price: &price}

	q := &fakeQueue{}
	tokens := &fakeTokens{token: "admin-token"}
	w := NewWorker(q, reg, courses, tokens, Options{
		Queue:           "catalog_sync",
		DeadLetterQueue: "catalog_sync_dlq",
		PollMaxMsg:      1,
		MaxRetries:      3,
		BackoffInitial:  time.Second,
		BackoffMax:      4 * time.Second,
	}, zerolog.Nop())
	w.sleep = func(context.Context, time.Duration) error { return nil }
	return w, q, tokens, courses, job
}

func message(t *testing.T, id int64, job model.CatalogSyncJob) *pgmq.Message {
	t.Helper()
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return &pgmq.Message{ID: id, ReadCount: 1, Data: data}
}

func TestProcessSuccess(t *testing.T) {
	reg := &fakeRegistrar{}
	w, q, _, courses, job := newTestWorker(t, reg)

	w.Process(context.Background(), message(t, 7, job))

	assert.Equal(t, 1, reg.calls)
	assert.Equal(t, []string{"admin-token"}, reg.seen)
	assert.Equal(t, []int64{7}, q.deleted)
	assert.Empty(t, q.sent["catalog_sync_dlq"])

	c, err := courses.GetCourseByID(context.Background(), job.CourseID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusSynced, c.SyncStatus)
}

func TestProcessRetriesThenDeadLetters(t *testing.T) {
	unavailable := &billing.Error{Op: "create_course", Kind: billing.KindUnavailable, Err: errors.New("connection refused")}
	reg := &fakeRegistrar{errs: []error{unavailable, unavailable, unavailable}}
	w, q, _, courses, job := newTestWorker(t, reg)

	w.Process(context.Background(), message(t, 8, job))

	assert.Equal(t, 3, reg.calls)
	assert.Equal(t, []int64{8}, q.deleted)
	require.Len(t, q.sent["catalog_sync_dlq"], 1)

	var dl deadLetterMessage
	require.NoError(t, json.Unmarshal(q.sent["catalog_sync_dlq"][0], &dl))
	assert.Equal(t, job.JobID, dl.Job.JobID)
	assert.Equal(t, stageRegister, dl.Stage)
	assert.NotEmpty(t, dl.Error)

	c, err := courses.GetCourseByID(context.Background(), job.CourseID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusFailed, c.SyncStatus)
	assert.NotEmpty(t, c.SyncError)
}

func TestProcessRecoversAfterTransientFailure(t *testing.T) {
	reg := &fakeRegistrar{errs: []error{&billing.Error{Op: "create_course", Kind: billing.KindUnavailable}}}
	w, q, _, courses, job := newTestWorker(t, reg)

	w.Process(context.Background(), message(t, 9, job))

	assert.Equal(t, 2, reg.calls)
	assert.Empty(t, q.sent["catalog_sync_dlq"])
	c, err := courses.GetCourseByID(context.Background(), job.CourseID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusSynced, c.SyncStatus)
}

// flakyCourses fails the first failSynced attempts to mark a course synced.
type flakyCourses struct {
	repository.CourseRepository
	failSynced int
}

func (f *flakyCourses) UpdateSyncStatus(ctx context.Context, id int64, status, syncErr string) error {
	if status == model.SyncStatusSynced && f.failSynced > 0 {
		f.failSynced--
		return errors.New("database is locked")
	}
	return f.CourseRepository.UpdateSyncStatus(ctx, id, status, syncErr)
}

func TestProcessStatusUpdateRetryDoesNotRegisterTwice(t *testing.T) {
	reg := &fakeRegistrar{}
	w, q, _, courses, job := newTestWorker(t, reg)
	w.courses = &flakyCourses{CourseRepository: courses, failSynced: 1}

	w.Process(context.Background(), message(t, 12, job))

	assert.Equal(t, 1, reg.calls)
	assert.Equal(t, []int64{12}, q.deleted)
	assert.Empty(t, q.sent["catalog_sync_dlq"])
	c, err := courses.GetCourseByID(context.Background(), job.CourseID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusSynced, c.SyncStatus)
}

func TestProcessStatusUpdateExhaustedDeadLettersRegisteredCourse(t *testing.T) {
	reg := &fakeRegistrar{}
	w, q, _, courses, job := newTestWorker(t, reg)
	w.courses = &flakyCourses{CourseRepository: courses, failSynced: 3}

	w.Process(context.Background(), message(t, 13, job))

	assert.Equal(t, 1, reg.calls)
	assert.Equal(t, []int64{13}, q.deleted)
	require.Len(t, q.sent["catalog_sync_dlq"], 1)
	var dl deadLetterMessage
	require.NoError(t, json.Unmarshal(q.sent["catalog_sync_dlq"][0], &dl))
	assert.Equal(t, stageMarkSynced, dl.Stage)

	// Billing has the course, so it is not marked failed.
	c, err := courses.GetCourseByID(context.Background(), job.CourseID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusPending, c.SyncStatus)
}

func TestProcessRejectedIsNotRetried(t *testing.T) {
	reg := &fakeRegistrar{errs: []error{&billing.Error{Op: "create_course", Kind: billing.KindRejected, Code: 400, Message: "Course code already exists"}}}
	w, q, _, courses, job := newTestWorker(t, reg)

	w.Process(context.Background(), message(t, 10, job))

	assert.Equal(t, 1, reg.calls)
	assert.Len(t, q.sent["catalog_sync_dlq"], 1)
	c, err := courses.GetCourseByID(context.Background(), job.CourseID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusFailed, c.SyncStatus)
	assert.Equal(t, "Course code already exists", c.SyncError)
}

func TestProcessUnauthorizedInvalidatesToken(t *testing.T) {
	reg := &fakeRegistrar{errs: []error{&billing.Error{Op: "create_course", Kind: billing.KindUnauthorized, Code: 401}}}
	w, _, tokens, _, job := newTestWorker(t, reg)

	w.Process(context.Background(), message(t, 11, job))

	assert.Equal(t, 1, tokens.invalidated)
	assert.Equal(t, 2, reg.calls)
}

func TestProcessInvalidPayloadIsAcked(t *testing.T) {
	reg := &fakeRegistrar{}
	w, q, _, _, _ := newTestWorker(t, reg)

	w.Process(context.Background(), &pgmq.Message{ID: 12, Data: []byte("not json")})

	assert.Zero(t, reg.calls)
	assert.Equal(t, []int64{12}, q.deleted)
	assert.Empty(t, q.sent["catalog_sync_dlq"])
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, nextBackoff(time.Second, 10*time.Second))
	assert.Equal(t, 10*time.Second, nextBackoff(8*time.Second, 10*time.Second))
	assert.Equal(t, time.Second, nextBackoff(0, 10*time.Second))
}

type fakeSessions struct {
	authCalls int
	ensureErr error
}

func (f *fakeSessions) Authenticate(context.Context, billing.Credentials) (*session.Session, error) {
	f.authCalls++
	return &session.Session{AccessToken: fmt.Sprintf("token-%d", f.authCalls), State: session.StateValid}, nil
}

func (f *fakeSessions) EnsureValid(_ context.Context, s *session.Session) (*session.Session, error) {
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	return s, nil
}

func TestServiceAccount(t *testing.T) {
	ctx := context.Background()
	sessions := &fakeSessions{}
	acct := NewServiceAccount(sessions, billing.Credentials{Username: "admin@example.com", Password: "secret"})

	token, err := acct.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	token, err = acct.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
	assert.Equal(t, 1, sessions.authCalls)

	acct.Invalidate()
	token, err = acct.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-2", token)

	sessions.ensureErr = session.ErrSessionInvalid
	token, err = acct.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-3", token)

	sessions.ensureErr = &billing.Error{Op: "refresh_token", Kind: billing.KindUnavailable}
	_, err = acct.Token(ctx)
	assert.ErrorIs(t, err, billing.ErrServiceUnavailable)
	assert.Equal(t, 3, sessions.authCalls)
}
