// Command arithsls runs the arithmetic local-search engine on a small
// factoring problem: find integers x and y with x*y = product and
// x + y = sum. A portfolio of independent searches over distinct seeds
// runs in parallel; the first satisfying assignment wins.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gitrdm/arithsls/internal/portfolio"
	"github.com/gitrdm/arithsls/pkg/arithsls"
)

type pair struct {
	X, Y int64
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		product int64
		sum     int64
		seeds   int
		workers int
		rounds  int
		timeout time.Duration
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "arithsls",
		Short: "Stochastic local search over arithmetic constraints",
		Long: `arithsls searches for integers x and y satisfying

    x * y = product
    x + y = sum

by stochastic local search: violated equalities propose exact linear and
quadratic moves for their variables, and a lookahead driver commits the
move that most improves a weighted score over all constraints.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zap.NewNop()
			if verbose {
				l, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				log = l
				defer func() { _ = log.Sync() }()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			seedList := make([]int64, seeds)
			for i := range seedList {
				seedList[i] = int64(i + 1)
			}
			attempt := func(ctx context.Context, seed int64) (pair, bool) {
				return solveFactorPair(ctx, seed, product, sum, rounds, log)
			}

			start := time.Now()
			res, err := portfolio.Run(ctx, workers, seedList, log, attempt)
			if err != nil {
				return fmt.Errorf("product=%d sum=%d: %w", product, sum, err)
			}
			fmt.Printf("x = %d, y = %d  (seed %d, %v)\n",
				res.Value.X, res.Value.Y, res.Seed, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().Int64Var(&product, "product", 72, "required product x*y")
	cmd.Flags().Int64Var(&sum, "sum", 17, "required sum x+y")
	cmd.Flags().IntVar(&seeds, "seeds", 8, "number of portfolio seeds")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel workers (0 = all cores)")
	cmd.Flags().IntVar(&rounds, "rounds", 16, "search rounds per attempt")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

// solveFactorPair builds a fresh engine for the seed and searches until the
// constraints hold, the round budget is spent, or ctx expires.
func solveFactorPair(ctx context.Context, seed, product, sum int64, rounds int, log *zap.Logger) (pair, bool) {
	bank := arithsls.NewBank()
	h := arithsls.NewHarness(bank, seed)
	cfg := arithsls.DefaultConfig()
	cfg.Logger = log
	e := arithsls.NewEngine(h, bank, cfg)

	x, y := bank.IntVar("x"), bank.IntVar("y")
	a1 := bank.Eq(bank.Mul(x, y), bank.Int(product))
	a2 := bank.Eq(bank.Add(x, y), bank.Int(sum))
	h.AddAtom(a1)
	h.AddAtom(a2)
	e.RegisterTerm(a1)
	e.RegisterTerm(a2)
	h.Assert(a1)
	h.Assert(a2)
	if err := e.Initialize(); err != nil {
		log.Warn("initialization failed", zap.Int64("seed", seed), zap.Error(err))
		return pair{}, false
	}

	for i := 0; i < rounds && ctx.Err() == nil; i++ {
		e.GlobalSearch(ctx)
		if e.IsSat() {
			return pair{X: e.Value(x).Int64(), Y: e.Value(y).Int64()}, true
		}
	}
	return pair{}, false
}
