// Package portfolio races independent local-search attempts over distinct
// random seeds. The arithmetic engine is strictly single-threaded, so
// coarse-grained parallelism comes from running whole attempts concurrently
// and keeping the first satisfying assignment found.
package portfolio

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// ErrNoSolution is returned when every attempt finished without finding a
// satisfying assignment.
var ErrNoSolution = errors.New("portfolio: no attempt found a satisfying assignment")

// Attempt runs one full solve from scratch with the given seed and reports
// whether it found a satisfying assignment. Implementations must build all
// solver state internally; attempts share nothing and must honor ctx.
type Attempt[T any] func(ctx context.Context, seed int64) (T, bool)

// Result carries a successful attempt's outcome and the seed that produced
// it.
type Result[T any] struct {
	Seed  int64
	Value T
}

// Run races one attempt per seed across a bounded set of workers and
// returns the first solution found. Remaining attempts are cancelled as
// soon as one succeeds. Workers defaults to the number of CPU cores and is
// never larger than the seed count.
func Run[T any](ctx context.Context, workers int, seeds []int64, log *zap.Logger, attempt Attempt[T]) (Result[T], error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(seeds) == 0 {
		return Result[T]{}, ErrNoSolution
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(seeds) {
		workers = len(seeds)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	seedChan := make(chan int64, len(seeds))
	for _, s := range seeds {
		seedChan <- s
	}
	close(seedChan)

	results := make(chan Result[T], workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seed := range seedChan {
				if runCtx.Err() != nil {
					return
				}
				value, ok := attempt(runCtx, seed)
				if !ok {
					log.Debug("attempt exhausted", zap.Int64("seed", seed))
					continue
				}
				log.Debug("attempt succeeded", zap.Int64("seed", seed))
				select {
				case results <- Result[T]{Seed: seed, Value: value}:
				default:
				}
				return
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	select {
	case r, ok := <-results:
		if !ok {
			if err := ctx.Err(); err != nil {
				return Result[T]{}, err
			}
			return Result[T]{}, ErrNoSolution
		}
		cancel()
		return r, nil
	case <-ctx.Done():
		return Result[T]{}, ctx.Err()
	}
}
