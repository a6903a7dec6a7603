package models

import (
	"fmt"
	"strings"
	"time"
)

type Query struct {
	CourseID    CourseID
	Question    string
	RequesterID string
}

type ContextEntry struct {
	ChunkID   string
	CourseID  CourseID
	Score     float64
	Text      string
	SourceRef string
	Topic     string
	Time      *TimeRange
}

// RetrievedContext holds at most K entries, all from CourseID, ordered by
// descending score. Text is the numbered rendering handed to generation.
type RetrievedContext struct {
	CourseID CourseID
	Question string
	K        int
	Entries  []ContextEntry
	Text     string
}

func (rc RetrievedContext) Empty() bool { return len(rc.Entries) == 0 }

// TopScore returns the best relevance score, or 0 for an empty context.
func (rc RetrievedContext) TopScore() float64 {
	if len(rc.Entries) == 0 {
		return 0
	}
	return rc.Entries[0].Score
}

type Source struct {
	ChunkID   string     `json:"chunk_id"`
	SourceRef string     `json:"source_ref"`
	Score     float64    `json:"score"`
	Topic     string     `json:"topic,omitempty"`
	Preview   string     `json:"preview"`
	Time      *TimeRange `json:"time,omitempty"`
}

type Answer struct {
	Text       string        `json:"text"`
	Sources    []Source      `json:"sources"`
	Confidence float64       `json:"confidence"`
	FollowUps  []string      `json:"follow_ups,omitempty"`
	Latency    time.Duration `json:"latency"`
}

// Prompt is what a Generator receives. Context is the rendered passages;
// Passages keeps them separately for generators that work on raw text.
type Prompt struct {
	System   string
	Question string
	Context  string
	Passages []string
}

// FormatEntry renders context entry n (1-based) the way prompts cite it.
func FormatEntry(n int, e ContextEntry) string {
	header := fmt.Sprintf("[%d] (source: %s", n, e.SourceRef)
	if e.Topic != "" {
		header += ", topic: " + e.Topic
	}
	if e.Time != nil {
		header += fmt.Sprintf(", %s-%s", clock(e.Time.Start), clock(e.Time.End))
	}
	return header + ")\n" + strings.TrimSpace(e.Text)
}

func clock(seconds float64) string {
	s := int(seconds)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
