package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyon/internal/billing"
	"studyon/internal/model"
	"studyon/internal/repository"
)

type catalogFixture struct {
	billing *fakeBilling
	courses repository.CourseRepository
	lessons repository.LessonRepository
	svc     CatalogService
}

func newCatalogFixture(t *testing.T, fb *fakeBilling, syncer func(repository.CourseRepository) CatalogSyncer) *catalogFixture {
	t.Helper()
	db := newTestDB(t)
	courses := repository.NewCourseRepo(db, repository.DriverSQLite)
	lessons := repository.NewLessonRepository(db, repository.DriverSQLite)
	if syncer == nil {
		syncer = func(c repository.CourseRepository) CatalogSyncer {
			return NewDirectCatalogSyncer(fb, c, zerolog.Nop())
		}
	}
	resolver := NewEntitlementResolver(fb, nil, zerolog.Nop())
	return &catalogFixture{
		billing: fb,
		courses: courses,
		lessons: lessons,
		svc:     NewCatalogService(courses, lessons, resolver, fb, syncer(courses), zerolog.Nop()),
	}
}

type fakeQueue struct {
	queue    string
	payloads [][]byte
	err      error
}

func (q *fakeQueue) Send(_ context.Context, queue string, payload []byte) error {
	if q.err != nil {
		return q.err
	}
	q.queue = queue
	q.payloads = append(q.payloads, payload)
	return nil
}

func TestCatalogListCourses(t *testing.T) {
	fb := &fakeBilling{courses: []billing.CourseInfo{{Code: "b", Type: model.CourseTypeFree}}}
	f := newCatalogFixture(t, fb, nil)
	seedCourses(t, f.courses, "a", "b")

	records, err := f.svc.ListCourses(context.Background(), testSession(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, codesOf(records))
	assert.Equal(t, model.CourseTypeUnknown, records[1].Type)
}

func TestCatalogCourseDetail(t *testing.T) {
	fb := &fakeBilling{
		courses: []billing.CourseInfo{{Code: "go", Type: model.CourseTypeBuy, Price: price(30)}},
		profile: &billing.Profile{Username: "student@example.com", Balance: 120.5},
	}
	f := newCatalogFixture(t, fb, nil)
	course := seedCourses(t, f.courses, "go")[0]

	_, err := f.svc.CreateLesson(context.Background(), course.ID, NewLessonInput{Title: "Second", Content: "b", Number: 2})
	require.NoError(t, err)
	_, err = f.svc.CreateLesson(context.Background(), course.ID, NewLessonInput{Title: "First", Content: "a", Number: 1})
	require.NoError(t, err)

	detail, err := f.svc.CourseDetail(context.Background(), testSession(t), course.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionBuy, detail.Course.Action)
	assert.InDelta(t, 120.5, detail.Balance, 0.001)
	require.Len(t, detail.Lessons, 2)
	assert.Equal(t, "First", detail.Lessons[0].Title)

	_, err = f.svc.CourseDetail(context.Background(), testSession(t), 404)
	assert.ErrorIs(t, err, ErrCourseNotFound)

	fb.profileErr = &billing.Error{Op: "current_user", Kind: billing.KindUnavailable}
	_, err = f.svc.CourseDetail(context.Background(), testSession(t), course.ID)
	assert.ErrorIs(t, err, billing.ErrServiceUnavailable)
}

func TestCatalogCreateCourseDirectSync(t *testing.T) {
	fb := &fakeBilling{}
	f := newCatalogFixture(t, fb, nil)

	course, err := f.svc.CreateCourse(context.Background(), testSession(t, "ROLE_SUPER_ADMIN"), NewCourseInput{
		Code:  "go-rent",
		Title: "Go for rent",
		Type:  model.CourseTypeRent,
		Price: price(15),
	})
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusSynced, course.SyncStatus)

	require.Len(t, fb.created, 1)
	assert.Equal(t, "go-rent", fb.created[0].Code)
	assert.Equal(t, model.CourseTypeRent, fb.created[0].Type)
	require.NotNil(t, fb.created[0].Price)
	assert.InDelta(t, 15, *fb.created[0].Price, 0)
}

func TestCatalogCreateCourseBillingFailureKeepsCourse(t *testing.T) {
	fb := &fakeBilling{createErr: &billing.Error{Op: "create_course", Kind: billing.KindUnavailable, Err: errors.New("refused")}}
	f := newCatalogFixture(t, fb, nil)

	course, err := f.svc.CreateCourse(context.Background(), testSession(t), NewCourseInput{Code: "go-free", Title: "Free Go", Type: model.CourseTypeFree})
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusFailed, course.SyncStatus)
	assert.NotEmpty(t, course.SyncError)

	stored, err := f.courses.GetCourseByCode(context.Background(), "go-free")
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestCatalogCreateCourseValidation(t *testing.T) {
	f := newCatalogFixture(t, &fakeBilling{}, nil)
	ctx := context.Background()
	s := testSession(t)

	_, err := f.svc.CreateCourse(ctx, s, NewCourseInput{Code: "x", Title: "X", Type: "subscription"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.CreateCourse(ctx, s, NewCourseInput{Code: "x", Title: "X", Type: model.CourseTypeBuy})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.CreateCourse(ctx, s, NewCourseInput{Code: "x", Title: "X", Type: model.CourseTypeFree})
	require.NoError(t, err)
	_, err = f.svc.CreateCourse(ctx, s, NewCourseInput{Code: "x", Title: "Again", Type: model.CourseTypeFree})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCatalogCreateCourseQueued(t *testing.T) {
	fb := &fakeBilling{}
	q := &fakeQueue{}
	f := newCatalogFixture(t, fb, func(repository.CourseRepository) CatalogSyncer {
		return NewQueueCatalogSyncer(q, "catalog_sync_queue", zerolog.Nop())
	})

	course, err := f.svc.CreateCourse(context.Background(), testSession(t), NewCourseInput{Code: "go-buy", Title: "Buy Go", Type: model.CourseTypeBuy, Price: price(99)})
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusPending, course.SyncStatus)
	assert.Zero(t, fb.callCount("create_course"))

	require.Len(t, q.payloads, 1)
	assert.Equal(t, "catalog_sync_queue", q.queue)
	var job model.CatalogSyncJob
	require.NoError(t, json.Unmarshal(q.payloads[0], &job))
	assert.Equal(t, course.ID, job.CourseID)
	assert.Equal(t, "go-buy", job.Code)
	assert.Equal(t, model.CourseTypeBuy, job.Type)
	assert.NotEmpty(t, job.JobID)
}

func TestCatalogCreateCourseQueueFailure(t *testing.T) {
	q := &fakeQueue{err: errors.New("pgmq down")}
	f := newCatalogFixture(t, &fakeBilling{}, func(repository.CourseRepository) CatalogSyncer {
		return NewQueueCatalogSyncer(q, "catalog_sync_queue", zerolog.Nop())
	})

	ctx := context.Background()
	in := NewCourseInput{Code: "go", Title: "Go", Type: model.CourseTypeFree}

	course, err := f.svc.CreateCourse(ctx, testSession(t), in)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusFailed, course.SyncStatus)
	assert.NotEmpty(t, course.SyncError)
	assert.Empty(t, q.payloads)

	// Once the queue recovers the same code is scheduled again.
	q.err = nil
	retried, err := f.svc.CreateCourse(ctx, testSession(t), in)
	require.NoError(t, err)
	assert.Equal(t, course.ID, retried.ID)
	assert.Equal(t, model.SyncStatusPending, retried.SyncStatus)
	assert.Empty(t, retried.SyncError)
	require.Len(t, q.payloads, 1)
}

func TestCatalogCreateLesson(t *testing.T) {
	f := newCatalogFixture(t, &fakeBilling{}, nil)
	course := seedCourses(t, f.courses, "go")[0]
	ctx := context.Background()

	for _, n := range []int{0, -1, model.MaxLessonNumber + 1} {
		_, err := f.svc.CreateLesson(ctx, course.ID, NewLessonInput{Title: "t", Content: "c", Number: n})
		assert.ErrorIs(t, err, ErrInvalidInput, "number %d", n)
	}

	lesson, err := f.svc.CreateLesson(ctx, course.ID, NewLessonInput{Title: "Last", Content: "c", Number: model.MaxLessonNumber})
	require.NoError(t, err)
	assert.NotZero(t, lesson.ID)

	_, err = f.svc.CreateLesson(ctx, 12345, NewLessonInput{Title: "t", Content: "c", Number: 1})
	assert.ErrorIs(t, err, ErrCourseNotFound)
}
