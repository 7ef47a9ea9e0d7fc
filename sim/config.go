package sim

import (
	"fmt"

	"github.com/ysuzuki1978/remimazolam-tci-simulator-sub002/sim/solver"
)

// RunConfig groups the per-run settings of the simulation loop.
type RunConfig struct {
	Horizon        float64           // simulated end time tEnd, minutes (must be > 0)
	OutputInterval float64           // fixed reporting interval, minutes; 0 = record every accepted step
	Method         solver.Method     // integrator variant (default rk45)
	Solver         solver.Config     // step-size and tolerance settings
	Strict         bool              // promote the ke0 band warning to a hard failure
	InitialState   *CompartmentState // optional nonzero starting state (default all-zero)
}

// DefaultRunConfig returns the documented defaults: a 60-minute horizon
// integrated with adaptive Dormand–Prince at the default tolerances,
// recording every accepted step.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Horizon: 60,
		Method:  solver.RK45,
		Solver:  solver.DefaultConfig(),
	}
}

// Validate checks the run configuration before a simulation starts.
func (c RunConfig) Validate() error {
	if c.Horizon <= 0 {
		return fmt.Errorf("horizon must be > 0 minutes, got %g", c.Horizon)
	}
	if c.OutputInterval < 0 {
		return fmt.Errorf("output interval must be >= 0, got %g", c.OutputInterval)
	}
	if !solver.ValidMethods[c.Method] {
		return fmt.Errorf("unknown solver method %q", c.Method)
	}
	return c.Solver.Validate()
}
