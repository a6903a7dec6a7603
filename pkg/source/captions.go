package source

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xhad/tutor/internal/models"
)

var (
	timingRe = regexp.MustCompile(`^\s*((?:\d+:)?\d{1,2}:\d{2}[.,]\d{1,3})\s*-->\s*((?:\d+:)?\d{1,2}:\d{2}[.,]\d{1,3})`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)
)

// ParseCaptions reads SRT or WebVTT captions into plain text, one cue per
// line, and the cues with their rune offsets into that text. Repeated cue
// text, common in generated captions, is merged into the previous cue.
func ParseCaptions(r io.Reader) (string, []models.Cue, error) {
	var (
		text    strings.Builder
		cues    []models.Cue
		lines   []string
		cue     *models.Cue
		last    string
		scanner = bufio.NewScanner(r)
	)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	flush := func() {
		if cue == nil {
			return
		}
		body := strings.Join(lines, " ")
		body = strings.Join(strings.Fields(tagRe.ReplaceAllString(body, "")), " ")
		switch {
		case body == "":
		case body == last && len(cues) > 0:
			cues[len(cues)-1].End = cue.End
		default:
			if text.Len() > 0 {
				text.WriteByte('\n')
			}
			cue.Offset = utf8.RuneCountInString(text.String())
			text.WriteString(body)
			cues = append(cues, *cue)
			last = body
		}
		cue, lines = nil, nil
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if m := timingRe.FindStringSubmatch(line); m != nil {
			flush()
			start, err := parseTimestamp(m[1])
			if err != nil {
				return "", nil, err
			}
			end, err := parseTimestamp(m[2])
			if err != nil {
				return "", nil, err
			}
			cue = &models.Cue{Start: start, End: end}
			continue
		}
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if cue != nil {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("read captions: %w", err)
	}
	flush()

	if len(cues) == 0 {
		return "", nil, fmt.Errorf("%w: no caption cues found", models.ErrEmptyInput)
	}
	return text.String(), cues, nil
}

// parseTimestamp accepts [hh:]mm:ss.mmm with either '.' or ',' before the
// milliseconds.
func parseTimestamp(s string) (time.Duration, error) {
	s = strings.Replace(s, ",", ".", 1)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid caption timestamp %q", s)
	}

	var d time.Duration
	for i, p := range parts[:len(parts)-1] {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid caption timestamp %q: %w", s, err)
		}
		if len(parts) == 3 && i == 0 {
			d += time.Duration(n) * time.Hour
		} else {
			d += time.Duration(n) * time.Minute
		}
	}

	secs, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid caption timestamp %q: %w", s, err)
	}
	return d + time.Duration(math.Round(secs*1000))*time.Millisecond, nil
}
