package models

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrEmbeddingUnavailable  = errors.New("embedding backend unavailable")
	ErrIndexUnavailable      = errors.New("vector index unavailable")
	ErrGenerationUnavailable = errors.New("generation backend unavailable")
	ErrTimeout               = errors.New("timeout")
	ErrDimensionMismatch     = errors.New("vector dimension mismatch")
	ErrEmptyInput            = errors.New("empty input")
	ErrInvalidCourse         = errors.New("invalid course id")
	ErrInvalidConfig         = errors.New("invalid configuration")
)

var taxonomy = []error{
	ErrEmbeddingUnavailable,
	ErrIndexUnavailable,
	ErrGenerationUnavailable,
	ErrTimeout,
	ErrDimensionMismatch,
	ErrEmptyInput,
	ErrInvalidCourse,
	ErrInvalidConfig,
}

// Classify tags err with kind unless it already carries a taxonomy error.
// Deadline errors always become ErrTimeout.
func Classify(err error, kind error) error {
	if err == nil {
		return nil
	}
	for _, known := range taxonomy {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Retryable reports whether a caller may retry the failed operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable) ||
		errors.Is(err, ErrIndexUnavailable) ||
		errors.Is(err, ErrGenerationUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// GenerationError is returned by synthesis when the model call fails. It
// keeps the sources that would have been cited.
type GenerationError struct {
	Sources []Source
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate answer (%d sources): %v", len(e.Sources), e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
