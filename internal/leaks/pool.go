package leaks

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"slices"

	"golang.org/x/sync/errgroup"
)

// ErrProbePanic indicates a probe worker panicked instead of returning.
// The panic is captured at the join barrier rather than tearing down the
// process, but the sample it belonged to is discarded.
var ErrProbePanic = errors.New("leak probe worker panicked")

// ProbeFunc performs one leak probe and reports the discovered address.
// Implementations must be safe for concurrent use; the pool runs many of
// them in parallel.
type ProbeFunc func(ctx context.Context) (netip.Addr, error)

// runProbePool runs workers goroutines, each performing perWorker sequential
// probes, and collects every discovered address. The pool enforces a join
// barrier: it returns only after all workers finished, and it returns an
// error (with no results) if any single probe failed, since a partial
// sample cannot support a leak verdict. The result is sorted and
// deduplicated.
func runProbePool(ctx context.Context, workers, perWorker int, probe ProbeFunc) ([]netip.Addr, error) {
	if workers <= 0 || perWorker <= 0 {
		return nil, nil
	}

	total := workers * perWorker
	results := make(chan netip.Addr, total)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %v", ErrProbePanic, r)
				}
			}()
			for j := 0; j < perWorker; j++ {
				addr, perr := probe(ctx)
				if perr != nil {
					return fmt.Errorf("probe failed: %w", perr)
				}
				select {
				case results <- addr:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(results)

	addrs := make([]netip.Addr, 0, total)
	for a := range results {
		addrs = append(addrs, a)
	}
	slices.SortFunc(addrs, netip.Addr.Compare)
	return slices.Compact(addrs), nil
}
