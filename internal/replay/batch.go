package replay

import (
	"context"
	"sort"
	"sync"

	"pullback-trading-bot/internal/logger"
	"pullback-trading-bot/internal/types"
)

// Unit is one independent replay job: one symbol on one trading day.
type Unit struct {
	Date   string
	Symbol string
	Bars   []types.Bar
}

// UnitResult pairs a unit with its outcome. Err is set when the unit failed;
// a failed unit never contaminates the others.
type UnitResult struct {
	Unit   Unit
	Trades []Trade
	Err    error
}

// RunBatch replays units across a bounded worker pool. Cancellation is
// honored between units; a unit already running completes its day. The
// progress callback, if non-nil, fires after every finished unit.
func (e *Engine) RunBatch(ctx context.Context, units []Unit, workers int, progress func(done, total int)) []UnitResult {
	if workers <= 0 {
		workers = 1
	}
	jobs := make(chan int)
	results := make([]UnitResult, len(units))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				u := units[idx]
				trades, err := e.ReplayDay(ctx, u.Symbol, u.Bars)
				if err != nil {
					logger.Warn(ctx, "Replay unit failed", "date", u.Date, "symbol", u.Symbol, "error", err)
				}
				results[idx] = UnitResult{Unit: u, Trades: trades, Err: err}

				mu.Lock()
				done++
				d := done
				mu.Unlock()
				if progress != nil {
					progress(d, len(units))
				}
			}
		}()
	}

	for idx := range units {
		if ctx.Err() != nil {
			break
		}
		jobs <- idx
	}
	close(jobs)
	wg.Wait()
	return results
}

// CollectTrades flattens successful unit results into one slice ordered by
// signal time, then symbol.
func CollectTrades(results []UnitResult) []Trade {
	var out []Trade
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		out = append(out, r.Trades...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SignalTs != out[j].SignalTs {
			return out[i].SignalTs < out[j].SignalTs
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}
