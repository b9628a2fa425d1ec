package portfolio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsFirstSolution(t *testing.T) {
	seeds := []int64{1, 2, 42, 7}
	attempt := func(ctx context.Context, seed int64) (string, bool) {
		if seed == 42 {
			return "found", true
		}
		return "", false
	}

	res, err := Run(context.Background(), 2, seeds, nil, attempt)
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.Seed)
	assert.Equal(t, "found", res.Value)
}

func TestRunNoSolution(t *testing.T) {
	attempt := func(ctx context.Context, seed int64) (int, bool) {
		return 0, false
	}
	_, err := Run(context.Background(), 4, []int64{1, 2, 3}, nil, attempt)
	assert.ErrorIs(t, err, ErrNoSolution)
}

func TestRunEmptySeeds(t *testing.T) {
	attempt := func(ctx context.Context, seed int64) (int, bool) {
		t.Fatal("attempt must not run")
		return 0, false
	}
	_, err := Run(context.Background(), 4, nil, nil, attempt)
	assert.ErrorIs(t, err, ErrNoSolution)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	attempt := func(ctx context.Context, seed int64) (int, bool) {
		close(started)
		<-ctx.Done()
		return 0, false
	}

	done := make(chan error, 1)
	go func() {
		_, err := Run(ctx, 1, []int64{1}, nil, attempt)
		done <- err
	}()
	<-started
	cancel()
	err := <-done
	assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, ErrNoSolution))
}

func TestRunCancelsLosers(t *testing.T) {
	winner := make(chan struct{})
	attempt := func(ctx context.Context, seed int64) (int64, bool) {
		if seed == 1 {
			<-winner
			return seed, true
		}
		// losers block until the winner's success cancels the run
		<-ctx.Done()
		return 0, false
	}

	done := make(chan Result[int64], 1)
	go func() {
		res, err := Run(context.Background(), 2, []int64{1, 2}, nil, attempt)
		if err == nil {
			done <- res
		}
	}()
	close(winner)
	res := <-done
	assert.Equal(t, int64(1), res.Seed)
}
