package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"studyon/internal/billing"
	"studyon/internal/model"
	"studyon/internal/session"
)

// BillingCatalog is the read-only part of billing.Gateway used to compute
// entitlements.
type BillingCatalog interface {
	ListCourses(ctx context.Context, token string) ([]billing.CourseInfo, error)
	GetCourse(ctx context.Context, token, code string) (*billing.CourseInfo, error)
	ListUserCourses(ctx context.Context, token string) ([]billing.UserCourse, error)
}

// EntitlementResolver merges the local catalog with billing data into one
// record per course for the session's user.
type EntitlementResolver interface {
	// ResolveAll returns records in billing order, followed by the local
	// courses billing does not know in catalog order. Any billing failure
	// aborts the whole resolution.
	ResolveAll(ctx context.Context, s *session.Session, courses []model.Course) ([]model.EntitlementRecord, error)
	// ResolveCourse resolves a single course through the single course endpoint.
	ResolveCourse(ctx context.Context, s *session.Session, course model.Course) (model.EntitlementRecord, error)
}

type entitlementResolver struct {
	billing BillingCatalog
	metrics *Metrics
	logger  zerolog.Logger
}

func NewEntitlementResolver(b BillingCatalog, metrics *Metrics, logger zerolog.Logger) EntitlementResolver {
	return &entitlementResolver{
		billing: b,
		metrics: metrics,
		logger:  logger.With().Str("service", "EntitlementResolver").Logger(),
	}
}

func (r *entitlementResolver) ResolveAll(ctx context.Context, s *session.Session, courses []model.Course) (records []model.EntitlementRecord, err error) {
	defer func() { r.metrics.resolved("all", err) }()

	if s == nil {
		return nil, session.ErrSessionInvalid
	}

	var (
		billingCourses []billing.CourseInfo
		userCourses    []billing.UserCourse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		billingCourses, err = r.billing.ListCourses(gctx, s.AccessToken)
		return err
	})
	g.Go(func() error {
		var err error
		userCourses, err = r.billing.ListUserCourses(gctx, s.AccessToken)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolving entitlements: %w", err)
	}

	return r.merge(courses, billingCourses, userCourses), nil
}

func (r *entitlementResolver) merge(courses []model.Course, billingCourses []billing.CourseInfo, userCourses []billing.UserCourse) []model.EntitlementRecord {
	local := make(map[string]model.Course, len(courses))
	for _, c := range courses {
		if _, ok := local[c.Code]; !ok {
			local[c.Code] = c
		}
	}

	records := make([]model.EntitlementRecord, 0, len(courses))
	emitted := make(map[string]struct{}, len(courses))
	for _, bc := range billingCourses {
		course, ok := local[bc.Code]
		if !ok {
			continue
		}
		if _, dup := emitted[bc.Code]; dup {
			continue
		}
		if !bc.Type.Valid() {
			r.logger.Warn().Str("code", bc.Code).Str("type", string(bc.Type)).Msg("Ignoring billing course with unsupported type")
			continue
		}
		records = append(records, entitlementFor(course, bc, userCourses))
		emitted[bc.Code] = struct{}{}
	}

	if len(records) == len(courses) {
		return records
	}

	unknown := 0
	for _, c := range courses {
		if _, ok := emitted[c.Code]; ok {
			continue
		}
		records = append(records, unknownRecord(c))
		emitted[c.Code] = struct{}{}
		unknown++
	}
	r.metrics.unknown(unknown)
	if unknown > 0 {
		r.logger.Debug().Int("count", unknown).Msg("Local courses not yet known to billing")
	}
	return records
}

func (r *entitlementResolver) ResolveCourse(ctx context.Context, s *session.Session, course model.Course) (rec model.EntitlementRecord, err error) {
	defer func() { r.metrics.resolved("course", err) }()

	if s == nil {
		return model.EntitlementRecord{}, session.ErrSessionInvalid
	}

	info, err := r.billing.GetCourse(ctx, s.AccessToken, course.Code)
	if errors.Is(err, billing.ErrNotFound) {
		r.metrics.unknown(1)
		return unknownRecord(course), nil
	}
	if err != nil {
		return model.EntitlementRecord{}, fmt.Errorf("resolving course %q: %w", course.Code, err)
	}

	switch {
	case info.Type == model.CourseTypeFree:
		return entitlementFor(course, *info, nil), nil
	case !info.Type.Valid():
		r.logger.Warn().Str("code", course.Code).Str("type", string(info.Type)).Msg("Ignoring billing course with unsupported type")
		return unknownRecord(course), nil
	}

	owned, err := r.billing.ListUserCourses(ctx, s.AccessToken)
	if err != nil {
		return model.EntitlementRecord{}, fmt.Errorf("resolving course %q: %w", course.Code, err)
	}
	return entitlementFor(course, *info, owned), nil
}

// entitlementFor applies billing's type and the user's entries to course.
// The first user entry with a matching code wins.
func entitlementFor(course model.Course, bc billing.CourseInfo, owned []billing.UserCourse) model.EntitlementRecord {
	rec := baseRecord(course)
	rec.Type = bc.Type
	if bc.Type == model.CourseTypeFree {
		return rec
	}
	rec.Price = bc.Price

	for _, uc := range owned {
		if uc.Code != bc.Code {
			continue
		}
		switch bc.Type {
		case model.CourseTypeRent:
			rec.Rented = true
			rec.ExpiresAt = uc.ExpiresAt
		case model.CourseTypeBuy:
			rec.Purchased = true
		}
		break
	}

	if !rec.Entitled() {
		switch bc.Type {
		case model.CourseTypeRent:
			rec.Action = model.ActionRent
		case model.CourseTypeBuy:
			rec.Action = model.ActionBuy
		}
	}
	return rec
}

func unknownRecord(course model.Course) model.EntitlementRecord {
	rec := baseRecord(course)
	rec.Type = model.CourseTypeUnknown
	return rec
}

func baseRecord(course model.Course) model.EntitlementRecord {
	return model.EntitlementRecord{
		ID:          course.ID,
		Code:        course.Code,
		Title:       course.Title,
		Description: course.Description,
	}
}
