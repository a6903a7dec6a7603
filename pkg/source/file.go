package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/pkg/chunker"
)

var formats = map[string]bool{
	".txt": false,
	".md":  false,
	".srt": true,
	".vtt": true,
}

// Supported reports whether LoadFile understands the file extension.
func Supported(path string) bool {
	_, ok := formats[strings.ToLower(filepath.Ext(path))]
	return ok
}

// LoadFile reads one transcript. Plain text and markdown are used as is;
// SRT and WebVTT captions keep their cue timing. The source id is derived
// from the path.
func LoadFile(path, lang string) (models.SourceDocument, error) {
	ext := strings.ToLower(filepath.Ext(path))
	captions, ok := formats[ext]
	if !ok {
		return models.SourceDocument{}, fmt.Errorf("unsupported transcript format %q: %s", ext, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return models.SourceDocument{}, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	ref := filepath.ToSlash(filepath.Clean(path))
	doc := models.SourceDocument{
		ID:        chunker.SourceID(ref),
		OriginRef: ref,
		Title:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Language:  lang,
		Metadata:  map[string]interface{}{"format": strings.TrimPrefix(ext, ".")},
	}

	if captions {
		text, cues, err := ParseCaptions(f)
		if err != nil {
			return models.SourceDocument{}, fmt.Errorf("%s: %w", path, err)
		}
		doc.Text, doc.Cues = text, cues
		return doc, nil
	}

	b, err := io.ReadAll(f)
	if err != nil {
		return models.SourceDocument{}, fmt.Errorf("read transcript: %w", err)
	}
	doc.Text = string(b)
	return doc, nil
}

// Files loads every supported transcript under Paths. Directories are
// walked recursively.
type Files struct {
	Paths    []string
	Language string
}

func (f Files) Load(ctx context.Context, courseID models.CourseID) ([]models.SourceDocument, error) {
	var files []string
	for _, p := range f.Paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && Supported(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
		sort.Strings(found)
		files = append(files, found...)
	}

	docs := make([]models.SourceDocument, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := LoadFile(path, f.Language)
		if err != nil {
			return nil, err
		}
		doc.CourseID = courseID
		docs = append(docs, doc)
	}
	return docs, nil
}
