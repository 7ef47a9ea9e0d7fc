package sim

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ysuzuki1978/remimazolam-tci-simulator-sub002/sim/solver"
)

// CompartmentSystem caches the micro rate constants of a parameter set and
// exposes the pure ODE right-hand side. Construct once per run (or share;
// the struct is immutable after NewCompartmentSystem).
type CompartmentSystem struct {
	Params PKParameters

	k10 float64 // elimination from central
	k12 float64 // central → shallow peripheral
	k21 float64 // shallow peripheral → central
	k13 float64 // central → deep peripheral
	k31 float64 // deep peripheral → central
}

// NewCompartmentSystem derives k10=CL/V1, k12=Q2/V1, k21=Q2/V2, k13=Q3/V1,
// k31=Q3/V3 from the parameter set.
func NewCompartmentSystem(params PKParameters) *CompartmentSystem {
	return &CompartmentSystem{
		Params: params,
		k10:    params.CL / params.V1,
		k12:    params.Q2 / params.V1,
		k21:    params.Q2 / params.V2,
		k13:    params.Q3 / params.V1,
		k31:    params.Q3 / params.V3,
	}
}

// Cp returns the plasma concentration for a central amount, with the
// physical floor applied: negative transient amounts read as zero.
func (s *CompartmentSystem) Cp(a1 float64) float64 {
	if a1 < 0 {
		a1 = 0
	}
	return a1 / s.Params.V1
}

// Derivative evaluates dState/dt at (t, y) under the given infusion rate
// function. No side effects; called many times per integration step.
// Concentrations read negative amounts as zero (physical floor), but the
// derivative itself is not clamped — clamping happens only when the
// integrator commits an accepted step.
func (s *CompartmentSystem) Derivative(rateAt func(t float64) float64) solver.RHS {
	return func(t float64, y, dy []float64) {
		a1, a2, a3, ce := y[idxA1], y[idxA2], y[idxA3], y[idxCe]
		dy[idxA1] = -(s.k10+s.k12+s.k13)*a1 + s.k21*a2 + s.k31*a3 + rateAt(t)
		dy[idxA2] = s.k12*a1 - s.k21*a2
		dy[idxA3] = s.k13*a1 - s.k31*a3
		dy[idxCe] = s.Params.Ke0 * (s.Cp(a1) - ce)
	}
}

// Matrix returns the system matrix A of the linear state-space form
// dx/dt = A·x + b·u, with x = (A1, A2, A3, Ce) and b = InputVector().
// Used by the TCI controller's analytic rate solve.
func (s *CompartmentSystem) Matrix() *mat.Dense {
	ke0 := s.Params.Ke0
	return mat.NewDense(stateDim, stateDim, []float64{
		-(s.k10 + s.k12 + s.k13), s.k21, s.k31, 0,
		s.k12, -s.k21, 0, 0,
		s.k13, 0, -s.k31, 0,
		ke0 / s.Params.V1, 0, 0, -ke0,
	})
}

// InputVector returns b: a unit infusion rate enters the central
// compartment only.
func (s *CompartmentSystem) InputVector() *mat.VecDense {
	return mat.NewVecDense(stateDim, []float64{1, 0, 0, 0})
}

// Eliminated returns the instantaneous elimination rate k10·A1 (mg/min),
// used by the mass-balance accounting in the run loop.
func (s *CompartmentSystem) Eliminated(a1 float64) float64 {
	if a1 < 0 {
		a1 = 0
	}
	return s.k10 * a1
}
