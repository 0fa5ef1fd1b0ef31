package model

// CatalogSyncJob asks for a locally created course to be registered with
// billing. It travels as JSON through the catalog sync queue.
type CatalogSyncJob struct {
	JobID    string     `json:"job_id"`
	CourseID int64      `json:"course_id"`
	Code     string     `json:"code"`
	Title    string     `json:"title"`
	Type     CourseType `json:"type"`
	Price    *float64   `json:"price,omitempty"`
}
