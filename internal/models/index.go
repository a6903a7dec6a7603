package models

import "time"

// Payload is stored next to each vector. All backends persist it as JSON.
type Payload struct {
	CourseID   CourseID   `json:"course_id"`
	SourceID   string     `json:"source_id"`
	SourceRef  string     `json:"source_ref"`
	Text       string     `json:"text"`
	Language   string     `json:"language,omitempty"`
	Topic      string     `json:"topic,omitempty"`
	ChunkIndex int        `json:"chunk_index"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
	PrevID     string     `json:"prev_id,omitempty"`
	NextID     string     `json:"next_id,omitempty"`
	Time       *TimeRange `json:"time,omitempty"`
	IngestedAt time.Time  `json:"ingested_at"`
}

type IndexEntry struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Match is one similarity hit. Score is cosine similarity in [-1, 1].
type Match struct {
	ID      string
	Score   float64
	Payload Payload
}
