package model

import "time"

// CourseRef is the minimal course reference attached to a transaction.
type CourseRef struct {
	ID    int64  `json:"id"`
	Code  string `json:"code"`
	Title string `json:"title"`
}

// TransactionView is a billing transaction joined with the local catalog.
type TransactionView struct {
	Type      string     `json:"type"`
	Amount    float64    `json:"amount"`
	CreatedAt time.Time  `json:"created_at"`
	Course    *CourseRef `json:"course,omitempty"`
}
