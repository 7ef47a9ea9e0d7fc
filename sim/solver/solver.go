// Package solver provides the numerical integrators that advance an ODE
// system state over time. The methods are generic over any right-hand side
// of the form dy/dt = f(t, y); the sim package supplies the compartment
// model RHS.
//
// Fixed-step methods (euler, rk4) always consume exactly the requested dt
// and fail only on non-finite results. Adaptive methods (rk45, stiff)
// estimate local truncation error against absolute and relative tolerances,
// halve dt and retry on rejection (bounded), and suggest a grown dt for the
// next call on success.
package solver

import (
	"errors"
	"fmt"
	"math"
)

// RHS evaluates the derivative dy/dt = f(t, y) into dy. Implementations
// must not retain y or dy across calls.
type RHS func(t float64, y, dy []float64)

// Method selects an integrator variant.
type Method string

const (
	// Euler is fixed-step forward Euler, first order.
	Euler Method = "euler"
	// RK4 is the fixed-step classic Runge–Kutta method, fourth order.
	RK4 Method = "rk4"
	// RK45 is the adaptive Dormand–Prince embedded 4(5) pair.
	RK45 Method = "rk45"
	// Stiff is an adaptive L-stable Rosenbrock method suited to systems
	// with a wide eigenvalue spread.
	Stiff Method = "stiff"
)

// ValidMethods is the set of recognized integrator names. Shared by
// Config.Validate and New.
var ValidMethods = map[Method]bool{Euler: true, RK4: true, RK45: true, Stiff: true}

// Sentinel errors of the solver layer.
var (
	// ErrStepRejected reports that an adaptive method exhausted its retry
	// budget without meeting the error tolerance.
	ErrStepRejected = errors.New("step rejected")

	// ErrDiverged reports a non-finite state component. The wrapping
	// error message names the component index and time.
	ErrDiverged = errors.New("solver diverged")
)

// Config holds the integrator settings with their documented defaults.
// The zero value is not usable; start from DefaultConfig.
type Config struct {
	InitDt      float64 // initial (and fixed-method) step size, default 0.005
	MinStep     float64 // smallest step an adaptive method may take, default 1e-9
	MaxStep     float64 // largest step an adaptive method may take, default 1.0
	AbsTol      float64 // absolute tolerance per component, default 1e-5
	RelTol      float64 // relative tolerance, default 1e-4
	MaxRetries  int     // bounded halve-and-retry attempts per step, default 10
	NonNegative bool    // clamp committed state components at zero, default true
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		InitDt:      0.005,
		MinStep:     1e-9,
		MaxStep:     1.0,
		AbsTol:      1e-5,
		RelTol:      1e-4,
		MaxRetries:  10,
		NonNegative: true,
	}
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.InitDt <= 0 {
		return fmt.Errorf("init dt must be > 0, got %g", c.InitDt)
	}
	if c.MinStep <= 0 || c.MaxStep <= 0 || c.MinStep > c.MaxStep {
		return fmt.Errorf("step bounds must satisfy 0 < min <= max, got [%g, %g]", c.MinStep, c.MaxStep)
	}
	if c.AbsTol <= 0 || c.RelTol < 0 {
		return fmt.Errorf("tolerances must be positive, got abs=%g rel=%g", c.AbsTol, c.RelTol)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", c.MaxRetries)
	}
	return nil
}

// Stats counts the work an integrator performed.
type Stats struct {
	Steps    int // accepted steps
	Rejected int // rejected attempts (adaptive methods)
	Evals    int // RHS evaluations
}

// Integrator advances a state vector one step at a time. Implementations
// are single-run objects and are not safe for concurrent use.
type Integrator interface {
	// Step advances y in place from t by at most dt and returns the new
	// time and the suggested size for the following step. Fixed methods
	// consume exactly dt; adaptive methods may consume less after
	// rejections. Committed components are clamped at zero when the
	// config requests it.
	Step(fn RHS, t, dt float64, y []float64) (tNew, dtNext float64, err error)

	// Stats returns the accumulated work counters.
	Stats() Stats
}

// New constructs the named integrator. The config is validated first.
func New(method Method, cfg Config) (Integrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("solver config: %w", err)
	}
	switch method {
	case Euler:
		return newEuler(cfg), nil
	case RK4:
		return newRK4(cfg), nil
	case RK45, "":
		return newRK45(cfg), nil
	case Stiff:
		return newStiff(cfg), nil
	}
	return nil, fmt.Errorf("unknown solver method %q", method)
}

// RejectedError reports an exhausted retry budget at a step attempt.
// Wraps ErrStepRejected.
type RejectedError struct {
	Time     float64
	Attempts int
	Ratio    float64 // last error-to-tolerance ratio
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("step rejected at t=%g after %d attempts (error ratio %.3g)", e.Time, e.Attempts, e.Ratio)
}

func (e *RejectedError) Unwrap() error { return ErrStepRejected }

// DivergedError identifies the first non-finite state component.
// Wraps ErrDiverged.
type DivergedError struct {
	Component int
	Time      float64
}

func (e *DivergedError) Error() string {
	return fmt.Sprintf("solver diverged: component %d non-finite at t=%g", e.Component, e.Time)
}

func (e *DivergedError) Unwrap() error { return ErrDiverged }

// checkFinite returns a *DivergedError for the first non-finite component,
// or nil.
func checkFinite(t float64, y []float64) error {
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &DivergedError{Component: i, Time: t}
		}
	}
	return nil
}

// clamp floors every component at zero.
func clamp(y []float64) {
	for i, v := range y {
		if v < 0 {
			y[i] = 0
		}
	}
}

// errorRatio computes the max ratio of estimated local error to tolerance,
// using tol_i = abs + rel·max(|y_i|, |yNew_i|). A ratio <= 1 accepts the
// step.
func errorRatio(cfg Config, y, yNew, errEst []float64) float64 {
	worst := 0.0
	for i := range errEst {
		tol := cfg.AbsTol + cfg.RelTol*math.Max(math.Abs(y[i]), math.Abs(yNew[i]))
		r := math.Abs(errEst[i]) / tol
		if r > worst {
			worst = r
		}
	}
	return worst
}
