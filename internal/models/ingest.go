package models

import (
	"fmt"
	"time"
)

type DocumentError struct {
	SourceID  string
	OriginRef string
	Err       error
}

func (e DocumentError) Error() string {
	return fmt.Sprintf("document %s (%s): %v", e.SourceID, e.OriginRef, e.Err)
}

func (e DocumentError) Unwrap() error { return e.Err }

type IngestionReport struct {
	CourseID      CourseID
	Documents     int
	ChunksWritten int
	// Skipped counts blank or too-short chunks that were not embedded.
	Skipped int
	// Stale counts entries removed because a re-ingested source no longer produces them.
	Stale    int
	Errors   []DocumentError
	Duration time.Duration
}

func (r IngestionReport) Failed() int { return len(r.Errors) }

type KnowledgeBaseStatus string

const (
	StatusEmpty     KnowledgeBaseStatus = "empty"
	StatusIngesting KnowledgeBaseStatus = "ingesting"
	StatusReady     KnowledgeBaseStatus = "ready"
	StatusPartial   KnowledgeBaseStatus = "partial"
	StatusFailed    KnowledgeBaseStatus = "failed"
)

// KnowledgeBase is the per-course ingestion state.
type KnowledgeBase struct {
	CourseID       CourseID
	Status         KnowledgeBaseStatus
	Documents      int
	Chunks         int
	LastIngestedAt time.Time
	LastError      string
}
