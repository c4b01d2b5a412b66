package domain

import "time"

// LessonStatus represents a lesson's position in the sync lifecycle.
type LessonStatus string

const (
	// LessonPending: created on first scan, content not yet examined.
	LessonPending LessonStatus = "pending"

	// LessonScanned: extraction found a video but the stream URL is unresolved.
	LessonScanned LessonStatus = "scanned"

	// LessonValidated: the stream URL is fully resolved and authenticated.
	LessonValidated LessonStatus = "validated"

	// LessonDownloaded: the file was written and verified on disk.
	LessonDownloaded LessonStatus = "downloaded"

	// LessonError: an unrecoverable failure; operator-resettable to pending.
	LessonError LessonStatus = "error"

	// LessonSkipped: extraction determined the lesson carries no video.
	LessonSkipped LessonStatus = "skipped"
)

// Lesson is the atomic unit of state tracking and retry within a course.
type Lesson struct {
	ID           int64
	ModuleID     int64
	Slug         string
	Name         string
	URL          string
	Position     int
	Locked       bool
	Status       LessonStatus
	Protocol     Protocol
	VideoURL     string
	ErrorMessage string
	ErrorCode    string
	ScannedAt    *time.Time
	DownloadedAt *time.Time
	FileSize     int64
}

// Module groups lessons within a course.
type Module struct {
	ID       int64
	Slug     string
	Name     string
	Position int
	Locked   bool
}

// CourseSummary aggregates lesson state for one course.
type CourseSummary struct {
	Name       string               `json:"name"`
	URL        string               `json:"url"`
	Total      int                  `json:"total"`
	Locked     int                  `json:"locked"`
	ByStatus   map[LessonStatus]int `json:"by_status"`
	LastSyncAt *time.Time           `json:"last_sync_at,omitempty"`
}
