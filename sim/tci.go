package sim

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// TargetKind selects which concentration the controller tracks.
type TargetKind string

const (
	// TargetPlasma tracks the plasma concentration Cp = A1/V1.
	TargetPlasma TargetKind = "plasma"
	// TargetEffectSite tracks the effect-site concentration Ce.
	TargetEffectSite TargetKind = "effect_site"
)

// ValidTargets is the set of recognized targeting modes.
var ValidTargets = map[TargetKind]bool{TargetPlasma: true, TargetEffectSite: true}

// Setpoint is one point of a (possibly time-varying) target schedule. The
// setpoint holds from Time until the next entry.
type Setpoint struct {
	Time  float64 // minutes
	Value float64 // µg/mL
}

// TCIConfig groups the closed-loop controller settings.
type TCIConfig struct {
	Target          TargetKind // plasma or effect-site targeting (default effect_site)
	Setpoints       []Setpoint // target schedule, time ascending (at least one entry)
	ControlInterval float64    // re-evaluation period, minutes (default 0.5, i.e. 30 s)
	MaxRate         float64    // infusion rate cap, mg/min (default 20)
}

// DefaultTCIConfig returns the documented defaults with an empty setpoint
// schedule (the caller must supply at least one setpoint).
func DefaultTCIConfig() TCIConfig {
	return TCIConfig{
		Target:          TargetEffectSite,
		ControlInterval: 0.5,
		MaxRate:         20,
	}
}

// Validate checks the controller configuration.
func (c TCIConfig) Validate() error {
	if !ValidTargets[c.Target] {
		return fmt.Errorf("unknown TCI target %q", c.Target)
	}
	if c.ControlInterval <= 0 {
		return fmt.Errorf("control interval must be > 0 minutes, got %g", c.ControlInterval)
	}
	if c.MaxRate <= 0 {
		return fmt.Errorf("max rate must be > 0 mg/min, got %g", c.MaxRate)
	}
	if len(c.Setpoints) == 0 {
		return fmt.Errorf("at least one setpoint required")
	}
	for i, sp := range c.Setpoints {
		if sp.Value < 0 {
			return fmt.Errorf("setpoint %d has negative target %g", i, sp.Value)
		}
		if i > 0 && sp.Time <= c.Setpoints[i-1].Time {
			return fmt.Errorf("setpoint times must be strictly increasing at index %d", i)
		}
	}
	return nil
}

// TCIController computes the infusion rate that drives the target
// compartment to its setpoint within one control interval. The compartment
// model is linear in the rate, so the required rate follows analytically
// from the state-space solution over the interval h:
//
//	x(h) = e^{A·h}·x₀ + G·u,   G = A⁻¹·(e^{A·h} − I)·b
//
// Re-evaluating against the actual simulated state every control tick
// corrects for whatever the rate cap or bolus transients perturbed.
// Switching between plasma and effect-site targeting only changes which
// state component is matched; the loop structure is identical.
type TCIController struct {
	system *CompartmentSystem
	cfg    TCIConfig

	expAh *mat.Dense    // e^{A·h}
	gain  *mat.VecDense // G: state response to a unit rate held for h
}

// NewTCIController validates the configuration and precomputes the
// matrix exponential and unit-rate response for the control interval.
func NewTCIController(system *CompartmentSystem, cfg TCIConfig) (*TCIController, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tci config: %w", err)
	}

	a := system.Matrix()
	var ah mat.Dense
	ah.Scale(cfg.ControlInterval, a)
	var expAh mat.Dense
	expAh.Exp(&ah)

	// G = A⁻¹·(e^{A·h} − I)·b, via one LU solve. A is nonsingular for any
	// valid parameter set (k10 > 0).
	eye := mat.NewDiagDense(stateDim, []float64{1, 1, 1, 1})
	var expMinusI mat.Dense
	expMinusI.Sub(&expAh, eye)
	var rhs mat.VecDense
	rhs.MulVec(&expMinusI, system.InputVector())

	var lu mat.LU
	lu.Factorize(a)
	gain := mat.NewVecDense(stateDim, nil)
	if err := lu.SolveVecTo(gain, false, &rhs); err != nil {
		return nil, fmt.Errorf("singular system matrix: %w", err)
	}

	return &TCIController{system: system, cfg: cfg, expAh: &expAh, gain: gain}, nil
}

// Config returns the controller configuration.
func (c *TCIController) Config() TCIConfig { return c.cfg }

// SetpointAt returns the target concentration in effect at time t.
// Before the first setpoint the first value applies.
func (c *TCIController) SetpointAt(t float64) float64 {
	sps := c.cfg.Setpoints
	i := sort.Search(len(sps), func(i int) bool { return sps[i].Time > t })
	if i == 0 {
		return sps[0].Value
	}
	return sps[i-1].Value
}

// RateFor returns the constant infusion rate to hold over the control
// interval starting at t, given the current simulated state. The analytic
// solve is exact for the linear model; the result is clamped to
// [0, MaxRate].
func (c *TCIController) RateFor(state CompartmentState, t float64) float64 {
	x := mat.NewVecDense(stateDim, state.Vector())
	var pred mat.VecDense
	pred.MulVec(c.expAh, x)

	target := c.SetpointAt(t + c.cfg.ControlInterval)

	var want, predicted, g float64
	switch c.cfg.Target {
	case TargetPlasma:
		want = target * c.system.Params.V1 // match amounts, not concentrations
		predicted = pred.AtVec(idxA1)
		g = c.gain.AtVec(idxA1)
	default: // TargetEffectSite
		want = target
		predicted = pred.AtVec(idxCe)
		g = c.gain.AtVec(idxCe)
	}

	if g <= 0 {
		return 0
	}
	rate := (want - predicted) / g
	if rate < 0 {
		return 0
	}
	if rate > c.cfg.MaxRate {
		return c.cfg.MaxRate
	}
	return rate
}
