package chunker_test

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/pkg/chunker"
)

func texts(chunks []models.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		maxSize int
		overlap int
		want    []string
	}{
		{"empty", "", 10, 2, nil},
		{"whitespace only", " \n\t  ", 10, 2, nil},
		{"fits in one chunk", "Short text.", 100, 20, []string{"Short text."}},
		{"sentence boundaries", "One. Two. Three.", 10, 0, []string{"One. Two. ", "Three."}},
		{"sentence boundaries with overlap", "One. Two. Three.", 10, 3, []string{"One. Two. ", "o. Three."}},
		{"hard split at whitespace", "abcdefghij klmnopqrst", 12, 0, []string{"abcdefghij ", "klmnopqrst"}},
		{"hard split without whitespace", "abcdefghijklmnop", 5, 2, []string{"abcde", "defgh", "ghijk", "jklmn", "mnop"}},
		{"paragraphs", "First para\n\nSecond para", 15, 0, []string{"First para\n\n", "Second para"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := chunker.Chunk(tt.text, tt.maxSize, tt.overlap)
			require.NoError(t, err)
			assert.Equal(t, tt.want, texts(got))
		})
	}
}

func TestChunkInvalidParams(t *testing.T) {
	for _, p := range [][2]int{{0, 0}, {-1, 0}, {10, -1}, {10, 10}, {10, 11}} {
		_, err := chunker.Chunk("some text", p[0], p[1])
		assert.ErrorIs(t, err, models.ErrInvalidConfig, "maxSize=%d overlap=%d", p[0], p[1])
	}
}

func randomText(r *rand.Rand, words int) string {
	vocab := []string{"force", "mass", "Newton", "é", "acceleration", "über", "the", "law", "F=ma", "résumé", "x"}
	var b strings.Builder
	for i := 0; i < words; i++ {
		b.WriteString(vocab[r.Intn(len(vocab))])
		switch r.Intn(12) {
		case 0:
			b.WriteString(". ")
		case 1:
			b.WriteString("\n\n")
		case 2:
			b.WriteString("? ")
		case 3:
			b.WriteString("")
		default:
			b.WriteString(" ")
		}
	}
	return b.String()
}

func TestChunkProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	params := [][2]int{{1000, 200}, {50, 10}, {20, 0}, {7, 6}, {1, 0}}

	for i := 0; i < 40; i++ {
		text := randomText(r, 20+r.Intn(300))
		runes := []rune(text)

		for _, p := range params {
			maxSize, overlap := p[0], p[1]
			chunks, err := chunker.Chunk(text, maxSize, overlap)
			require.NoError(t, err)
			require.NotEmpty(t, chunks)

			var bodies strings.Builder
			for j, c := range chunks {
				ct := []rune(c.Text)
				assert.LessOrEqual(t, len(ct), maxSize)
				assert.Equal(t, string(runes[c.Start:c.End]), c.Text)
				assert.Greater(t, c.End, c.BodyStart)

				if j == 0 {
					assert.Equal(t, 0, c.BodyStart)
				} else {
					prev := []rune(chunks[j-1].Text)
					ov := min(overlap, len(prev))
					assert.Equal(t, chunks[j-1].End, c.BodyStart)
					assert.Equal(t, string(prev[len(prev)-ov:]), string(ct[:c.BodyStart-c.Start]))
				}
				bodies.WriteString(c.Body())
			}
			assert.Equal(t, text, bodies.String())

			again, err := chunker.Chunk(text, maxSize, overlap)
			require.NoError(t, err)
			assert.Equal(t, chunks, again)
		}
	}
}

func TestChunker_Split(t *testing.T) {
	c, err := chunker.NewWithConfig(chunker.Config{ChunkSize: 40, ChunkOverlap: 10, MinChunkLength: 15})
	require.NoError(t, err)

	doc := models.SourceDocument{
		ID:       "lecture-1",
		CourseID: "physics-101",
		Text:     "Momentum is conserved in collisions. Momentum equals mass times velocity. Ok.",
		Cues: []models.Cue{
			{Start: 0, End: 4 * time.Second, Offset: 0},
			{Start: 4 * time.Second, End: 9 * time.Second, Offset: 37},
			{Start: 9 * time.Second, End: 10 * time.Second, Offset: 74},
		},
	}

	chunks, skipped, err := c.Split(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, skipped, "trailing body is shorter than the minimum")

	assert.Equal(t, chunker.ChunkID("physics-101", "lecture-1", 0), chunks[0].ID)
	assert.Equal(t, chunks[1].ID, chunks[0].NextID)
	assert.Equal(t, chunks[0].ID, chunks[1].PrevID)
	assert.Empty(t, chunks[0].PrevID)
	assert.Empty(t, chunks[1].NextID)
	assert.Equal(t, "collisions", chunks[0].Topic, "ties resolve alphabetically")
	assert.Equal(t, models.CourseID("physics-101"), chunks[1].CourseID)
	assert.Equal(t, 1, chunks[1].Index)

	require.NotNil(t, chunks[0].Time)
	assert.Equal(t, 0.0, chunks[0].Time.Start)
	assert.Equal(t, 4.0, chunks[0].Time.End)
	require.NotNil(t, chunks[1].Time)
	assert.Equal(t, 4.0, chunks[1].Time.Start)

	again, _, err := c.Split(doc)
	require.NoError(t, err)
	assert.Equal(t, chunks, again)
}

func TestChunker_SplitTopic(t *testing.T) {
	c, err := chunker.NewWithConfig(chunker.Config{})
	require.NoError(t, err)

	chunks, _, err := c.Split(models.SourceDocument{ID: "s", CourseID: "c", Text: "Force and more force. The force acts on mass."})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "force", chunks[0].Topic)
	assert.Nil(t, chunks[0].Time)
}

func TestChunkIDScopedByCourse(t *testing.T) {
	a := chunker.ChunkID("course-a", "src", 0)
	b := chunker.ChunkID("course-b", "src", 0)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, chunker.ChunkID("course-a", "src", 0))
	assert.NotEqual(t, a, chunker.ChunkID("course-a", "src", 1))
	assert.Equal(t, chunker.SourceID("videos/intro.mp4"), chunker.SourceID("videos/intro.mp4"))
}

func TestNewWithConfigDefaults(t *testing.T) {
	c, err := chunker.NewWithConfig(chunker.Config{})
	require.NoError(t, err)
	assert.Equal(t, 1000, c.Config().ChunkSize)
	assert.Equal(t, 200, c.Config().ChunkOverlap)

	_, err = chunker.NewWithConfig(chunker.Config{ChunkSize: 100, ChunkOverlap: 100})
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"newton's", "second", "law", "f", "ma"}, chunker.Tokenize("Newton's second law: F=ma"))
	assert.True(t, chunker.IsStopword("the"))
	assert.False(t, chunker.IsStopword("force"))
}
