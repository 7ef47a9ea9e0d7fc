package sim

import (
	"context"
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RunSpec names one simulation of a batch. Each spec owns its Simulator;
// specs share nothing mutable (PKParameters are immutable after
// derivation, so sharing those across specs is fine).
type RunSpec struct {
	Name      string
	Simulator *Simulator
}

// RunAll executes independent runs in parallel — different patients,
// scenario variants, or solver configurations for comparison. Results are
// returned in spec order. Runs are embarrassingly parallel; parallelism
// bounds the number of in-flight runs (<= 0 means GOMAXPROCS). The first
// failing run cancels the rest via the group context; completed results
// are still returned alongside the error.
func RunAll(ctx context.Context, specs []RunSpec, parallelism int) ([]*RunResult, error) {
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	results := make([]*RunResult, len(specs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			logrus.Debugf("batch run %q starting", spec.Name)
			result, err := spec.Simulator.Run(ctx)
			results[i] = result
			if err != nil {
				logrus.Warnf("batch run %q failed: %v", spec.Name, err)
			}
			return err
		})
	}
	err := g.Wait()
	return results, err
}
