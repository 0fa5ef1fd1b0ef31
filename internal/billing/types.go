package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"studyon/internal/model"
)

// Credentials are the username/password pair accepted by the auth endpoint.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration is the payload of the register endpoint.
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Tokens is an access/refresh token pair issued by billing.
type Tokens struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// Profile is the current-user payload.
type Profile struct {
	Username string   `json:"username"`
	Balance  float64  `json:"balance"`
	Roles    []string `json:"roles"`
}

func (p *Profile) UnmarshalJSON(data []byte) error {
	var aux struct {
		Username string          `json:"username"`
		Balance  json.RawMessage `json:"balance"`
		Roles    []string        `json:"roles"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	balance, err := parseMoney(aux.Balance)
	if err != nil {
		return fmt.Errorf("profile balance: %w", err)
	}
	p.Username = aux.Username
	p.Roles = aux.Roles
	p.Balance = 0
	if balance != nil {
		p.Balance = *balance
	}
	return nil
}

// CourseInfo is billing's view of a course, keyed by Code.
type CourseInfo struct {
	Code  string
	Type  model.CourseType
	Title string
	Price *float64
}

func (c *CourseInfo) UnmarshalJSON(data []byte) error {
	var aux struct {
		Code  string          `json:"code"`
		Type  string          `json:"type"`
		Title string          `json:"title"`
		Price json.RawMessage `json:"price"`
		Cost  json.RawMessage `json:"cost"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	// The list endpoint calls the price "cost".
	raw := aux.Price
	if isNull(raw) {
		raw = aux.Cost
	}
	price, err := parseMoney(raw)
	if err != nil {
		return fmt.Errorf("course %q price: %w", aux.Code, err)
	}
	c.Code = aux.Code
	c.Type = model.CourseType(strings.ToLower(strings.TrimSpace(aux.Type)))
	c.Title = aux.Title
	c.Price = price
	return nil
}

// NewCourse is the payload used to register a local course with billing.
type NewCourse struct {
	Code  string           `json:"code"`
	Title string           `json:"title"`
	Type  model.CourseType `json:"type"`
	Price *float64         `json:"price,omitempty"`
}

// UserCourse is one entry of the user's purchased or rented courses.
type UserCourse struct {
	Code      string
	ExpiresAt *time.Time
}

func (u *UserCourse) UnmarshalJSON(data []byte) error {
	var aux struct {
		Code      string          `json:"code"`
		ExpiresAt json.RawMessage `json:"expires_at"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	expires, err := parseTimestamp(aux.ExpiresAt)
	if err != nil {
		return fmt.Errorf("user course %q expires_at: %w", aux.Code, err)
	}
	u.Code = aux.Code
	u.ExpiresAt = expires
	return nil
}

// Transaction is one entry of the user's billing history.
type Transaction struct {
	Type       string
	Amount     float64
	CreatedAt  time.Time
	CourseCode string
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	var aux struct {
		Type       string          `json:"type"`
		Amount     json.RawMessage `json:"amount"`
		CreatedAt  json.RawMessage `json:"created_at"`
		CourseCode *string         `json:"course_code"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	amount, err := parseMoney(aux.Amount)
	if err != nil {
		return fmt.Errorf("transaction amount: %w", err)
	}
	created, err := parseTimestamp(aux.CreatedAt)
	if err != nil {
		return fmt.Errorf("transaction created_at: %w", err)
	}
	t.Type = aux.Type
	if amount != nil {
		t.Amount = *amount
	}
	if created != nil {
		t.CreatedAt = *created
	}
	if aux.CourseCode != nil {
		t.CourseCode = *aux.CourseCode
	}
	return nil
}

// PaymentResult is the outcome of a successful pay call.
type PaymentResult struct {
	Success    bool
	CourseType model.CourseType
	ExpiresAt  *time.Time
}

func (p *PaymentResult) UnmarshalJSON(data []byte) error {
	var aux struct {
		Success    bool            `json:"success"`
		CourseType string          `json:"course_type"`
		ExpiresAt  json.RawMessage `json:"expires_at"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	expires, err := parseTimestamp(aux.ExpiresAt)
	if err != nil {
		return fmt.Errorf("payment expires_at: %w", err)
	}
	p.Success = aux.Success
	p.CourseType = model.CourseType(aux.CourseType)
	p.ExpiresAt = expires
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp accepts RFC 3339 and the other layouts billing has used,
// as well as unix seconds. A missing or null value yields nil.
func parseTimestamp(raw json.RawMessage) (*time.Time, error) {
	if isNull(raw) {
		return nil, nil
	}
	if raw[0] != '"' {
		secs, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unsupported timestamp %s", raw)
		}
		t := time.Unix(secs, 0).UTC()
		return &t, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unsupported timestamp %q", s)
}

// parseMoney accepts a JSON number or a numeric string.
func parseMoney(raw json.RawMessage) (*float64, error) {
	if isNull(raw) {
		return nil, nil
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
		if text == "" {
			return nil, nil
		}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("unsupported amount %s", raw)
	}
	return &v, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
