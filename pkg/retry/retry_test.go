package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/pkg/retry"
)

var fast = retry.RetryConfig{Attempts: 3, Delay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestDo_RetriesUnavailable(t *testing.T) {
	calls := 0
	got, err := retry.Do(context.Background(), fast, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, fmt.Errorf("%w: connection refused", models.ErrIndexUnavailable)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), fast, func() (string, error) {
		calls++
		return "", fmt.Errorf("%w: wrong model", models.ErrDimensionMismatch)
	})
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
	assert.Equal(t, 1, calls)
}

func TestDo_GivesUp(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), fast, func() (int, error) {
		calls++
		return 0, models.ErrTimeout
	})
	assert.ErrorIs(t, err, models.ErrTimeout)
	assert.Equal(t, 3, calls)
}

func TestDo_ZeroAttemptsUsesDefault(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), retry.RetryConfig{Delay: time.Millisecond}, func() (int, error) {
		calls++
		return 0, errors.Join(models.ErrGenerationUnavailable)
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDefaultRetryConfig(t *testing.T) {
	rc := retry.DefaultRetryConfig()
	assert.Equal(t, uint(3), rc.Attempts)
	assert.Less(t, rc.Delay, rc.MaxDelay)
	assert.Len(t, rc.ToRetryOptions(), 3)
}
