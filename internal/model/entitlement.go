package model

import "time"

// CourseType is the monetization type of a course as reported by billing.
type CourseType string

const (
	CourseTypeFree CourseType = "free"
	CourseTypeRent CourseType = "rent"
	CourseTypeBuy  CourseType = "buy"
	// CourseTypeUnknown marks a local course billing has not been told about yet.
	CourseTypeUnknown CourseType = "unknown"
)

// Billable reports whether t is one of the types billing sells.
func (t CourseType) Billable() bool {
	return t == CourseTypeRent || t == CourseTypeBuy
}

func (t CourseType) Valid() bool {
	return t == CourseTypeFree || t.Billable()
}

// Action is what the UI should offer the user for a course.
type Action string

const (
	ActionNone Action = ""
	ActionBuy  Action = "buy"
	ActionRent Action = "rent"
)

// EntitlementRecord is the per-request view of one course for one user.
type EntitlementRecord struct {
	ID          int64      `json:"id"`
	Code        string     `json:"code"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Type        CourseType `json:"type"`
	Price       *float64   `json:"price,omitempty"`
	Purchased   bool       `json:"purchased"`
	Rented      bool       `json:"rented"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Action      Action     `json:"action,omitempty"`
}

// Entitled reports whether the user already owns or rents the course.
func (r EntitlementRecord) Entitled() bool {
	return r.Purchased || r.Rented
}
