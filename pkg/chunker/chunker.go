package chunker

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/xhad/tutor/internal/models"
)

type Config struct {
	ChunkSize    int
	ChunkOverlap int
	// MinChunkLength drops chunks whose body has fewer runes. 0 keeps everything non-blank.
	MinChunkLength  int
	CustomStopwords []string
}

type Chunker struct {
	config    Config
	stopwords map[string]struct{}
}

func NewWithConfig(config Config) (*Chunker, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
		if config.ChunkOverlap == 0 {
			config.ChunkOverlap = 200
		}
	}
	if err := validate(config.ChunkSize, config.ChunkOverlap); err != nil {
		return nil, err
	}
	if config.MinChunkLength < 0 {
		return nil, fmt.Errorf("%w: min chunk length cannot be negative", models.ErrInvalidConfig)
	}

	return &Chunker{
		config:    config,
		stopwords: stopwordSet(config.CustomStopwords),
	}, nil
}

func (c *Chunker) Config() Config { return c.config }

// Split chunks a document and assigns stable ids, neighbor links, topics and
// caption time ranges. It returns the kept chunks and how many were skipped.
func (c *Chunker) Split(doc models.SourceDocument) ([]models.Chunk, int, error) {
	raw, err := Chunk(doc.Text, c.config.ChunkSize, c.config.ChunkOverlap)
	if err != nil {
		return nil, 0, err
	}

	var (
		chunks  []models.Chunk
		skipped int
	)
	for _, ch := range raw {
		body := strings.TrimSpace(ch.Body())
		if body == "" || len([]rune(body)) < c.config.MinChunkLength {
			skipped++
			continue
		}

		ch.ID = ChunkID(doc.CourseID, doc.ID, ch.BodyStart)
		ch.SourceID = doc.ID
		ch.CourseID = doc.CourseID
		ch.Index = len(chunks)
		ch.Topic = topic(ch.Text, c.stopwords)
		ch.Time = timeRange(doc.Cues, ch.BodyStart, ch.End)
		chunks = append(chunks, ch)
	}

	for i := range chunks {
		if i > 0 {
			chunks[i].PrevID = chunks[i-1].ID
		}
		if i < len(chunks)-1 {
			chunks[i].NextID = chunks[i+1].ID
		}
	}

	return chunks, skipped, nil
}

// Chunk splits text into chunks of at most maxSize runes. Cuts fall on
// paragraph, line or sentence boundaries when one fits, otherwise on the
// last whitespace inside the budget, otherwise exactly at the budget. Every
// chunk after the first starts with the trailing overlap runes of the
// previous chunk's text; the remaining bodies tile the input exactly.
// Blank input yields no chunks.
func Chunk(text string, maxSize, overlap int) ([]models.Chunk, error) {
	if err := validate(maxSize, overlap); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	bounds := boundaries(runes)

	var chunks []models.Chunk
	pos := 0
	for pos < len(runes) {
		prefix := 0
		if len(chunks) > 0 {
			prev := chunks[len(chunks)-1]
			prefix = min(overlap, prev.End-prev.Start)
		}
		start := pos - prefix
		limit := pos + maxSize - prefix

		end := len(runes)
		if limit < len(runes) {
			end = cutPoint(runes, bounds, pos, limit)
		}

		chunks = append(chunks, models.Chunk{
			Index:     len(chunks),
			Text:      string(runes[start:end]),
			Start:     start,
			BodyStart: pos,
			End:       end,
		})
		pos = end
	}

	return chunks, nil
}

func validate(maxSize, overlap int) error {
	if maxSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", models.ErrInvalidConfig)
	}
	if overlap < 0 || overlap >= maxSize {
		return fmt.Errorf("%w: chunk overlap must be non-negative and less than chunk size", models.ErrInvalidConfig)
	}
	return nil
}

// cutPoint picks the end of a body starting at pos that may not pass limit.
func cutPoint(runes []rune, bounds []int, pos, limit int) int {
	// last semantic boundary in (pos, limit]
	i := sort.SearchInts(bounds, limit+1) - 1
	if i >= 0 && bounds[i] > pos {
		return bounds[i]
	}

	for w := limit - 1; w > pos; w-- {
		if unicode.IsSpace(runes[w]) {
			return w + 1
		}
	}
	return limit
}

// boundaries returns the offsets where a new paragraph, line or sentence
// starts. Whitespace stays with the unit it follows.
func boundaries(runes []rune) []int {
	var out []int
	for i := 0; i < len(runes); {
		if !unicode.IsSpace(runes[i]) {
			i++
			continue
		}
		s := i
		newline := false
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			if runes[i] == '\n' {
				newline = true
			}
			i++
		}
		if i == len(runes) || s == 0 {
			continue
		}
		if newline || isTerminator(runes[s-1]) {
			out = append(out, i)
		}
	}
	return out
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func timeRange(cues []models.Cue, from, to int) *models.TimeRange {
	if len(cues) == 0 {
		return nil
	}

	first, last := -1, -1
	for i, cue := range cues {
		if cue.Offset <= from {
			first = i
		}
		if cue.Offset < to {
			last = i
		}
	}
	if first < 0 {
		first = 0
	}
	if last < first {
		return nil
	}

	return &models.TimeRange{
		Start: cues[first].Start.Seconds(),
		End:   cues[last].End.Seconds(),
	}
}
