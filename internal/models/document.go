package models

import "time"

// CourseID scopes every document, chunk and query to one curriculum unit.
type CourseID string

func (c CourseID) String() string { return string(c) }

// SourceDocument is one transcript or text unit handed to ingestion.
// Re-ingesting a source produces a new SourceDocument that supersedes the old one.
type SourceDocument struct {
	ID         string
	CourseID   CourseID
	OriginRef  string
	Title      string
	Language   string
	Text       string
	IngestedAt time.Time
	// Cues map caption timing onto rune offsets of Text. Empty for plain text.
	Cues     []Cue
	Metadata map[string]interface{}
}

// Cue is a caption segment starting at rune Offset of the document text.
type Cue struct {
	Start  time.Duration
	End    time.Duration
	Offset int
}

// TimeRange is the media time span a chunk covers, in seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type Chunk struct {
	ID       string
	SourceID string
	CourseID CourseID
	Index    int
	// Text is the overlap prefix followed by the body.
	Text string
	// Start and End delimit Text in the source, in runes. BodyStart is where
	// the prefix ends; bodies of consecutive chunks tile the source exactly.
	Start     int
	BodyStart int
	End       int
	PrevID    string
	NextID    string
	Topic     string
	Time      *TimeRange
}

// Body returns the part of the chunk not shared with its predecessor.
func (c Chunk) Body() string {
	r := []rune(c.Text)
	return string(r[c.BodyStart-c.Start:])
}
