package service

import "errors"

var (
	ErrAccessDenied   = errors.New("access denied")
	ErrCourseNotFound = errors.New("course not found")
	ErrLessonNotFound = errors.New("lesson not found")
	// ErrInvalidInput marks caller mistakes such as an out of range lesson number.
	ErrInvalidInput = errors.New("invalid input")
)
