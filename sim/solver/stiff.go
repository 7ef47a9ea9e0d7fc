package solver

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Coefficients of the modified Rosenbrock 2(3) pair (Shampine–Reichelt).
// rosD makes the two-stage advancing solution L-stable; rosE32 weights the
// third stage of the embedded third-order error companion.
var (
	rosD   = 1.0 / (2.0 + math.Sqrt2)
	rosE32 = 6.0 + math.Sqrt2
)

// stiff is an adaptive second-order linearly implicit Rosenbrock method
// with an embedded third-order error companion, a finite-difference
// Jacobian, and LU solves per step. The advancing solution is L-stable, so
// the step size is limited by accuracy rather than by the fastest rate
// constant, and the error companion shares the same matrix factorization,
// so its estimate decays with the solution instead of pinning large stiff
// steps at rejection:
//
//	W = I − d·h·J
//	W·k1 = f(t, y)
//	W·(k2 − k1) = f(t+h/2, y + (h/2)·k1) − k1
//	y⁺ = y + h·k2
//	W·k3 = f(t+h, y⁺) − e32·(k2 − f(t+h/2, ·)) − 2·(k1 − f(t, y))
//	err = (h/6)·(k1 − 2·k2 + k3)
//
// The RHS is autonomous within an integration segment (the rate is held
// constant between breakpoints), so the ∂f/∂t terms of the pair vanish.
type stiff struct {
	cfg   Config
	stats Stats

	jac    *mat.Dense
	iter   *mat.Dense // W = I − d·h·J
	lu     mat.LU
	f0     []float64
	f1     []float64
	f2     []float64
	k1     *mat.VecDense
	k2     *mat.VecDense
	k3     *mat.VecDense
	rhs    *mat.VecDense
	yTrial []float64
	errEst []float64
	tmp    []float64
	pert   []float64
}

func newStiff(cfg Config) *stiff {
	return &stiff{cfg: cfg}
}

func (s *stiff) alloc(n int) {
	if s.yTrial != nil {
		return
	}
	s.jac = mat.NewDense(n, n, nil)
	s.iter = mat.NewDense(n, n, nil)
	s.f0 = make([]float64, n)
	s.f1 = make([]float64, n)
	s.f2 = make([]float64, n)
	s.k1 = mat.NewVecDense(n, nil)
	s.k2 = mat.NewVecDense(n, nil)
	s.k3 = mat.NewVecDense(n, nil)
	s.rhs = mat.NewVecDense(n, nil)
	s.yTrial = make([]float64, n)
	s.errEst = make([]float64, n)
	s.tmp = make([]float64, n)
	s.pert = make([]float64, n)
}

// jacobian fills s.jac with a forward-difference approximation of ∂f/∂y
// at (t, y), reusing the already-computed f0 = f(t, y).
func (s *stiff) jacobian(fn RHS, t float64, y []float64) {
	n := len(y)
	eps := math.Sqrt(2.220446049250313e-16)
	copy(s.pert, y)
	for j := 0; j < n; j++ {
		h := eps * math.Max(math.Abs(y[j]), 1.0)
		s.pert[j] = y[j] + h
		fn(t, s.pert, s.f1)
		s.stats.Evals++
		for i := 0; i < n; i++ {
			s.jac.Set(i, j, (s.f1[i]-s.f0[i])/h)
		}
		s.pert[j] = y[j]
	}
}

// attempt evaluates one trial step of size dt and returns the
// error-to-tolerance ratio, or a negative value when the linear system is
// singular (treated like a rejection so the step shrinks).
func (s *stiff) attempt(fn RHS, t, dt float64, y []float64) float64 {
	n := len(y)

	// iteration matrix W = I − d·dt·J
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := -rosD * dt * s.jac.At(i, j)
			if i == j {
				v += 1.0
			}
			s.iter.Set(i, j, v)
		}
	}
	s.lu.Factorize(s.iter)
	if math.Abs(s.lu.Det()) < 1e-300 {
		return -1
	}

	// stage 1
	for i := 0; i < n; i++ {
		s.rhs.SetVec(i, s.f0[i])
	}
	if err := s.lu.SolveVecTo(s.k1, false, s.rhs); err != nil {
		return -1
	}

	// stage 2 yields the advancing second-order solution
	for i := 0; i < n; i++ {
		s.tmp[i] = y[i] + 0.5*dt*s.k1.AtVec(i)
	}
	fn(t+0.5*dt, s.tmp, s.f1)
	s.stats.Evals++
	for i := 0; i < n; i++ {
		s.rhs.SetVec(i, s.f1[i]-s.k1.AtVec(i))
	}
	if err := s.lu.SolveVecTo(s.k2, false, s.rhs); err != nil {
		return -1
	}
	for i := 0; i < n; i++ {
		s.k2.SetVec(i, s.k2.AtVec(i)+s.k1.AtVec(i))
		s.yTrial[i] = y[i] + dt*s.k2.AtVec(i)
	}

	// stage 3 feeds only the embedded error companion
	fn(t+dt, s.yTrial, s.f2)
	s.stats.Evals++
	for i := 0; i < n; i++ {
		s.rhs.SetVec(i, s.f2[i]-rosE32*(s.k2.AtVec(i)-s.f1[i])-2.0*(s.k1.AtVec(i)-s.f0[i]))
	}
	if err := s.lu.SolveVecTo(s.k3, false, s.rhs); err != nil {
		return -1
	}

	for i := 0; i < n; i++ {
		s.errEst[i] = dt / 6.0 * (s.k1.AtVec(i) - 2.0*s.k2.AtVec(i) + s.k3.AtVec(i))
	}
	return errorRatio(s.cfg, y, s.yTrial, s.errEst)
}

func (s *stiff) Step(fn RHS, t, dt float64, y []float64) (float64, float64, error) {
	s.alloc(len(y))
	if dt > s.cfg.MaxStep {
		dt = s.cfg.MaxStep
	}

	fn(t, y, s.f0)
	s.stats.Evals++
	s.jacobian(fn, t, y)

	for retry := 0; ; retry++ {
		ratio := s.attempt(fn, t, dt, y)
		if ratio >= 0 {
			if err := checkFinite(t+dt, s.yTrial); err != nil {
				return t, dt, err
			}
		}
		if ratio >= 0 && ratio <= 1 {
			copy(y, s.yTrial)
			if s.cfg.NonNegative {
				clamp(y)
			}
			s.stats.Steps++
			return t + dt, s.nextDt(dt, ratio), nil
		}
		s.stats.Rejected++
		if retry >= s.cfg.MaxRetries {
			return t, dt, &RejectedError{Time: t, Attempts: retry + 1, Ratio: ratio}
		}
		dt *= 0.5
		if dt < s.cfg.MinStep {
			return t, dt, &RejectedError{Time: t, Attempts: retry + 1, Ratio: ratio}
		}
	}
}

// nextDt grows the step with third-order scaling of the error companion,
// growth capped at 5x and cfg.MaxStep.
func (s *stiff) nextDt(dt, ratio float64) float64 {
	factor := 5.0
	if ratio > 0 {
		factor = 0.9 * math.Pow(ratio, -1.0/3.0)
		factor = math.Min(5.0, math.Max(0.2, factor))
	}
	next := dt * factor
	if next > s.cfg.MaxStep {
		next = s.cfg.MaxStep
	}
	if next < s.cfg.MinStep {
		next = s.cfg.MinStep
	}
	return next
}

func (s *stiff) Stats() Stats { return s.stats }
