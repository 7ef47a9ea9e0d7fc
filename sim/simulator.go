// sim/simulator.go
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/ysuzuki1978/remimazolam-tci-simulator-sub002/sim/dosing"
	"github.com/ysuzuki1978/remimazolam-tci-simulator-sub002/sim/solver"
)

// Simulator is the core object that owns one run: the compartment system,
// the rate source (compiled schedule or TCI controller), the integrator
// configuration, and the metrics. A Simulator instance belongs to a single
// run; independent runs build independent Simulators.
type Simulator struct {
	System     *CompartmentSystem
	Schedule   *dosing.Schedule // open-loop rate source (nil in TCI mode)
	Controller *TCIController   // closed-loop rate source (nil in open-loop mode)
	Config     RunConfig
	Metrics    *RunMetrics
}

// RunResult is everything a run produces for downstream consumers: the
// derived parameters, the trajectory, the metrics, and — if the run
// terminated early — the failure record alongside the partial trajectory.
type RunResult struct {
	Params     PKParameters
	Trajectory Trajectory
	Metrics    RunMetrics
	Failure    *DivergenceError // nil on clean completion
}

// NewProtocolSimulator builds an open-loop run: the protocol is validated
// and compiled into a schedule up front.
func NewProtocolSimulator(params PKParameters, protocol dosing.Protocol, cfg RunConfig) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	schedule, err := dosing.Compile(protocol)
	if err != nil {
		return nil, err
	}
	return &Simulator{
		System:   NewCompartmentSystem(params),
		Schedule: schedule,
		Config:   cfg,
		Metrics:  &RunMetrics{},
	}, nil
}

// NewTCISimulator builds a closed-loop run tracking the configured target
// schedule.
func NewTCISimulator(params PKParameters, tci TCIConfig, cfg RunConfig) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	system := NewCompartmentSystem(params)
	controller, err := NewTCIController(system, tci)
	if err != nil {
		return nil, err
	}
	return &Simulator{
		System:     system,
		Controller: controller,
		Config:     cfg,
		Metrics:    &RunMetrics{},
	}, nil
}

// segmentEnds returns the sorted interior time points the step loop must
// land on exactly: protocol breakpoints in open-loop mode, control ticks in
// TCI mode, plus the horizon itself.
func (s *Simulator) segmentEnds() []float64 {
	horizon := s.Config.Horizon
	var ends []float64
	if s.Controller != nil {
		// multiply instead of accumulating so float drift cannot create a
		// sliver segment just before the horizon
		h := s.Controller.Config().ControlInterval
		for i := 1; float64(i)*h < horizon; i++ {
			ends = append(ends, float64(i)*h)
		}
	} else {
		for _, bp := range s.Schedule.Breakpoints() {
			if bp > 0 && bp < horizon {
				ends = append(ends, bp)
			}
		}
	}
	return append(ends, horizon)
}

// auditRHS wraps the compartment derivative with one extra component, the
// cumulative eliminated mass, so the elimination audit is integrated at the
// same order as the state it audits.
func (s *Simulator) auditRHS(rate float64) solver.RHS {
	inner := s.System.Derivative(func(float64) float64 { return rate })
	return func(t float64, y, dy []float64) {
		inner(t, y, dy)
		dy[stateDim] = s.System.Eliminated(y[idxA1])
	}
}

// Run executes the simulation to the horizon. Validation errors surface
// immediately; numerical errors terminate the run with the partial
// trajectory preserved in the returned RunResult and a non-nil Failure.
// The context bounds wall-clock execution of long runs; it is checked at
// segment granularity.
func (s *Simulator) Run(ctx context.Context) (*RunResult, error) {
	integ, err := solver.New(s.Config.Method, s.Config.Solver)
	if err != nil {
		return nil, err
	}

	result := &RunResult{Params: s.System.Params}

	// the state vector carries one extra component: cumulative eliminated
	// mass, integrated alongside the compartments at full solver accuracy
	y := make([]float64, stateDim+1)
	initialMass := 0.0
	if s.Config.InitialState != nil {
		copy(y, s.Config.InitialState.Vector())
		for i := idxA1; i <= idxA3; i++ {
			if y[i] < 0 {
				y[i] = 0
			}
			initialMass += y[i]
		}
	}

	t := 0.0
	dt := s.Config.Solver.InitDt
	rate := 0.0
	nextOutput := s.Config.OutputInterval
	prev := s.sample(t, y, rate)

	logrus.Debugf("starting run: horizon=%.1fmin method=%s", s.Config.Horizon, s.Config.Method)

	for _, segEnd := range s.segmentEnds() {
		if ctx.Err() != nil {
			s.finish(result, prev, t, integ.Stats())
			return result, ctx.Err()
		}

		// segment-start discontinuities: bolus mass and the rate to hold
		if s.Schedule != nil {
			if bolus := s.Schedule.BolusesAt(t); bolus > 0 {
				y[idxA1] += bolus
				s.Metrics.TotalBolus += bolus
			}
			rate = s.Schedule.RateAt(t)
		} else {
			rate = s.Controller.RateFor(StateFromVector(y), t)
		}
		rhs := s.auditRHS(rate)

		// re-record the segment start so bolus jumps and rate changes are
		// visible in the trajectory
		prev = s.sample(t, y, rate)
		s.record(prev, &result.Trajectory, &nextOutput)

		for t < segEnd {
			step := math.Min(dt, segEnd-t)
			tNew, dtNext, stepErr := integ.Step(rhs, t, step, y)
			if stepErr != nil {
				s.fail(result, stepErr, t, prev)
				s.finish(result, prev, t, integ.Stats())
				return result, result.Failure
			}

			s.Metrics.TotalInfused += rate * (tNew - t)
			s.Metrics.Eliminated = y[stateDim]
			t, dt = tNew, dtNext

			cur := s.sample(t, y, rate)
			s.checkMassBalance(cur, initialMass)
			s.record(cur, &result.Trajectory, &nextOutput)
			prev = cur
		}
	}

	s.finish(result, prev, t, integ.Stats())
	return result, nil
}

// sample builds a trajectory sample from the committed state.
func (s *Simulator) sample(t float64, y []float64, rate float64) Sample {
	sm := Sample{
		Time: t,
		A1:   y[idxA1],
		A2:   y[idxA2],
		A3:   y[idxA3],
		Cp:   s.System.Cp(y[idxA1]),
		Ce:   y[idxCe],
		Rate: rate,
	}
	if sm.Cp > s.Metrics.MaxCp {
		s.Metrics.MaxCp = sm.Cp
	}
	if sm.Ce > s.Metrics.MaxCe {
		s.Metrics.MaxCe = sm.Ce
	}
	return sm
}

// record appends either every accepted step or fixed-interval dense output
// interpolated between the previous and current samples.
func (s *Simulator) record(cur Sample, tr *Trajectory, nextOutput *float64) {
	if s.Config.OutputInterval <= 0 {
		tr.Append(cur)
		return
	}
	if tr.Len() == 0 {
		tr.Append(cur)
		return
	}
	last := tr.Samples[tr.Len()-1]
	for *nextOutput <= cur.Time {
		tr.Append(lerpSample(last, cur, *nextOutput))
		*nextOutput += s.Config.OutputInterval
	}
}

// checkMassBalance tracks the worst discrepancy between dose in and
// (compartment mass + eliminated mass) seen so far.
func (s *Simulator) checkMassBalance(cur Sample, initialMass float64) {
	in := initialMass + s.Metrics.TotalInfused + s.Metrics.TotalBolus
	held := cur.A1 + cur.A2 + cur.A3
	diff := math.Abs(in - held - s.Metrics.Eliminated)
	if diff > s.Metrics.MassBalanceError {
		s.Metrics.MassBalanceError = diff
	}
}

// fail converts a solver error into the run's failure record. Exhausted
// step-control retries escalate to numerical divergence, per the error
// taxonomy.
func (s *Simulator) fail(result *RunResult, stepErr error, t float64, last Sample) {
	compartment := "step control"
	var diverged *solver.DivergedError
	if errors.As(stepErr, &diverged) {
		compartment = compartmentName(diverged.Component)
	}
	result.Failure = &DivergenceError{
		Compartment: compartment,
		Time:        t,
		LastState:   CompartmentState{A1: last.A1, A2: last.A2, A3: last.A3, Ce: last.Ce},
		Cause:       stepErr,
	}
	logrus.Errorf("run aborted: %v", result.Failure)
}

// finish closes out the trajectory and metrics. The final committed state
// is always recorded even when dense output would skip it.
func (s *Simulator) finish(result *RunResult, last Sample, t float64, st solver.Stats) {
	result.Trajectory.Append(last)
	s.Metrics.Steps = st.Steps
	s.Metrics.RejectedSteps = st.Rejected
	s.Metrics.RHSEvals = st.Evals
	s.Metrics.Samples = result.Trajectory.Len()
	s.Metrics.SimEndedTime = t
	result.Metrics = *s.Metrics
}

// String identifies the run mode for logs.
func (s *Simulator) String() string {
	if s.Controller != nil {
		return fmt.Sprintf("tci(%s)", s.Controller.Config().Target)
	}
	return "protocol"
}
