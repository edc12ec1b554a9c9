package queue_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tallyhq/tally/internal/queue"
)

func TestBackoff(t *testing.T) {
	base := 5 * time.Second
	max := 10 * time.Minute

	type testCase struct {
		name    string
		attempt int
		want    time.Duration
	}

	tests := []testCase{
		{name: "FirstAttempt", attempt: 0, want: 5 * time.Second},
		{name: "SecondAttempt", attempt: 1, want: 10 * time.Second},
		{name: "ThirdAttempt", attempt: 2, want: 20 * time.Second},
		{name: "SixthAttempt", attempt: 5, want: 160 * time.Second},
		{name: "CappedAtMax", attempt: 20, want: max},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, queue.Backoff(base, max, tc.attempt))
		})
	}
}

func TestPermanent(t *testing.T) {
	t.Run("WrapsAndDetects", func(t *testing.T) {
		cause := errors.New("bad payload")
		err := queue.Permanent(cause)

		assert.True(t, queue.IsPermanent(err))
		assert.ErrorIs(t, err, cause)
	})

	t.Run("SurvivesFurtherWrapping", func(t *testing.T) {
		err := fmt.Errorf("processing: %w", queue.Permanent(errors.New("bad payload")))

		assert.True(t, queue.IsPermanent(err))
	})

	t.Run("PlainErrorIsRetryable", func(t *testing.T) {
		assert.False(t, queue.IsPermanent(errors.New("timeout")))
	})

	t.Run("NilStaysNil", func(t *testing.T) {
		assert.NoError(t, queue.Permanent(nil))
	})
}
