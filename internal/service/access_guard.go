package service

import (
	"time"

	"studyon/internal/model"
	"studyon/internal/session"
)

// AccessPolicy configures the lesson guard.
type AccessPolicy struct {
	// AllowUnknown lets users view lessons of courses billing does not know yet.
	AllowUnknown bool
	// CheckRentalExpiry refuses rentals whose expiry has passed.
	CheckRentalExpiry bool
	// AdminRole bypasses the guard entirely.
	AdminRole string
}

// AccessGuard decides whether an entitlement allows viewing lesson content.
type AccessGuard struct {
	policy AccessPolicy
	now    func() time.Time
}

func NewAccessGuard(policy AccessPolicy) *AccessGuard {
	return &AccessGuard{policy: policy, now: time.Now}
}

// CanViewLesson applies the policy to rec, ignoring roles.
func (g *AccessGuard) CanViewLesson(rec model.EntitlementRecord) bool {
	switch rec.Type {
	case model.CourseTypeFree:
		return true
	case model.CourseTypeBuy:
		return rec.Purchased
	case model.CourseTypeRent:
		if !rec.Rented {
			return false
		}
		if !g.policy.CheckRentalExpiry || rec.ExpiresAt == nil {
			return true
		}
		return rec.ExpiresAt.After(g.now())
	case model.CourseTypeUnknown:
		return g.policy.AllowUnknown
	}
	return false
}

// Bypasses reports whether s holds the admin role.
func (g *AccessGuard) Bypasses(s *session.Session) bool {
	return s.IsAdmin(g.policy.AdminRole)
}
