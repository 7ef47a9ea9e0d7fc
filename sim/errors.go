package sim

import (
	"errors"
	"fmt"
)

// Error taxonomy for the simulation core.
//
// Validation errors (ErrInvalidCovariate, dosing.ErrInvalidProtocol) are
// rejected synchronously before a run starts and are never retried.
// Plausibility has two tiers: ErrKe0OutOfRange is a warning by default and
// promotable to a hard failure via RunConfig.Strict, while
// ErrNonPhysiological is always fatal when building a simulator since the
// derivation yields no usable parameters for it.
// Numerical errors terminate a run but preserve the partial trajectory.
var (
	// ErrInvalidCovariate reports malformed patient input (non-positive
	// age, weight or height, unknown sex or ASA-PS class).
	ErrInvalidCovariate = errors.New("invalid covariate")

	// ErrNonPhysiological reports a derived PK parameter outside its
	// plausibility bound (all parameters must be strictly positive). No
	// parameters accompany this error, so simulator construction treats
	// it as fatal regardless of strictness.
	ErrNonPhysiological = errors.New("non-physiological parameter")

	// ErrKe0OutOfRange reports a ke0 outside the sanity band (0, 1) min⁻¹.
	// The offending value is still returned alongside the error; the
	// caller decides whether to treat it as fatal.
	ErrKe0OutOfRange = errors.New("ke0 out of range")

	// ErrNumericalDivergence reports a non-finite or unbounded state.
	// Always fatal for the run; see DivergenceError for diagnostics.
	ErrNumericalDivergence = errors.New("numerical divergence")
)

// DivergenceError carries the diagnostic context of a failed run: which
// compartment went non-finite, at what simulated time, and the last state
// that was still valid. Wraps ErrNumericalDivergence.
type DivergenceError struct {
	Compartment string
	Time        float64
	LastState   CompartmentState
	Cause       error
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("numerical divergence in %s at t=%.4f min (last valid state %+v): %v",
		e.Compartment, e.Time, e.LastState, e.Cause)
}

func (e *DivergenceError) Unwrap() error { return ErrNumericalDivergence }
