package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"studyon/internal/billing"
	"studyon/internal/model"
	"studyon/internal/repository"
	"studyon/internal/session"
)

// fakeBilling is an in-memory billing.Gateway.
type fakeBilling struct {
	mu    sync.Mutex
	calls map[string]int

	courses        []billing.CourseInfo
	coursesErr     error
	userCourses    []billing.UserCourse
	userCoursesErr error
	getErr         error
	txs            []billing.Transaction
	txErr          error
	profile        *billing.Profile
	profileErr     error
	payResult      *billing.PaymentResult
	payErr         error
	created        []billing.NewCourse
	createErr      error
	registerTokens *billing.Tokens
	registerErr    error
}

var _ billing.Gateway = (*fakeBilling)(nil)

func (f *fakeBilling) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[op]++
}

func (f *fakeBilling) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBilling) Authenticate(context.Context, billing.Credentials) (*billing.Tokens, error) {
	f.record("authenticate")
	return nil, &billing.Error{Op: "authenticate", Kind: billing.KindUnauthorized}
}

func (f *fakeBilling) RefreshToken(context.Context, string) (*billing.Tokens, error) {
	f.record("refresh_token")
	return nil, &billing.Error{Op: "refresh_token", Kind: billing.KindUnauthorized}
}

func (f *fakeBilling) Register(context.Context, billing.Registration) (*billing.Tokens, error) {
	f.record("register")
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	if f.registerTokens == nil {
		return &billing.Tokens{}, nil
	}
	return f.registerTokens, nil
}

func (f *fakeBilling) CurrentUser(context.Context, string) (*billing.Profile, error) {
	f.record("current_user")
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	if f.profile == nil {
		return &billing.Profile{}, nil
	}
	return f.profile, nil
}

func (f *fakeBilling) ListCourses(context.Context, string) ([]billing.CourseInfo, error) {
	f.record("list_courses")
	return f.courses, f.coursesErr
}

func (f *fakeBilling) GetCourse(_ context.Context, _ string, code string) (*billing.CourseInfo, error) {
	f.record("get_course")
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, c := range f.courses {
		if c.Code == code {
			c := c
			return &c, nil
		}
	}
	return nil, &billing.Error{Op: "get_course", Kind: billing.KindNotFound, Code: 500}
}

func (f *fakeBilling) ListUserCourses(context.Context, string) ([]billing.UserCourse, error) {
	f.record("list_user_courses")
	return f.userCourses, f.userCoursesErr
}

func (f *fakeBilling) PayCourse(context.Context, string, string) (*billing.PaymentResult, error) {
	f.record("pay_course")
	return f.payResult, f.payErr
}

func (f *fakeBilling) ListTransactions(context.Context, string) ([]billing.Transaction, error) {
	f.record("list_transactions")
	return f.txs, f.txErr
}

func (f *fakeBilling) CreateCourse(_ context.Context, _ string, c billing.NewCourse) error {
	f.record("create_course")
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	f.created = append(f.created, c)
	f.mu.Unlock()
	return nil
}

func price(v float64) *float64 { return &v }

func testSession(t *testing.T, roles ...string) *session.Session {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": "student@example.com",
		"roles":    roles,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test"))
	require.NoError(t, err)

	s, err := session.New(token, "refresh")
	require.NoError(t, err)
	return s
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := repository.Open(ctx, repository.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.Migrate(ctx, db, repository.DriverSQLite))
	return db
}

// seedCourses stores courses in the given order and returns them.
func seedCourses(t *testing.T, repo repository.CourseRepository, codes ...string) []model.Course {
	t.Helper()
	out := make([]model.Course, 0, len(codes))
	for _, code := range codes {
		c := &model.Course{Code: code, Title: "Course " + code}
		require.NoError(t, repo.CreateCourse(context.Background(), c))
		out = append(out, *c)
	}
	return out
}
