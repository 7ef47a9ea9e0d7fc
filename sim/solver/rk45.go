package solver

import (
	"math"
)

// Dormand–Prince 4(5) Butcher tableau. The seventh stage equals the
// fifth-order solution (FSAL), so the embedded fourth-order weights give a
// free local error estimate.
var (
	dpC = [7]float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1}

	dpA = [7][6]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	}

	// fifth-order solution weights
	dpB5 = [7]float64{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84, 0}
	// embedded fourth-order weights
	dpB4 = [7]float64{5179.0 / 57600, 0, 7571.0 / 16695, 393.0 / 640, -92097.0 / 339200, 187.0 / 2100, 1.0 / 40}
)

// rk45 is the adaptive Dormand–Prince embedded 4(5) pair. On tolerance
// failure the step is halved and retried up to cfg.MaxRetries times before
// the step is rejected; on success the suggested next step grows by the
// usual fifth-order controller, bounded by cfg.MaxStep.
type rk45 struct {
	cfg   Config
	stats Stats

	k      [7][]float64
	yTrial []float64
	errEst []float64
	tmp    []float64
}

func newRK45(cfg Config) *rk45 {
	return &rk45{cfg: cfg}
}

func (r *rk45) alloc(n int) {
	if r.yTrial != nil {
		return
	}
	for s := range r.k {
		r.k[s] = make([]float64, n)
	}
	r.yTrial = make([]float64, n)
	r.errEst = make([]float64, n)
	r.tmp = make([]float64, n)
}

// attempt evaluates one trial step of size dt, filling yTrial and errEst,
// and returns the error-to-tolerance ratio.
func (r *rk45) attempt(fn RHS, t, dt float64, y []float64) float64 {
	for s := 0; s < 7; s++ {
		for i := range y {
			acc := y[i]
			for j := 0; j < s; j++ {
				acc += dt * dpA[s][j] * r.k[j][i]
			}
			r.tmp[i] = acc
		}
		fn(t+dpC[s]*dt, r.tmp, r.k[s])
	}
	r.stats.Evals += 7

	for i := range y {
		y5 := y[i]
		y4 := y[i]
		for s := 0; s < 7; s++ {
			y5 += dt * dpB5[s] * r.k[s][i]
			y4 += dt * dpB4[s] * r.k[s][i]
		}
		r.yTrial[i] = y5
		r.errEst[i] = y5 - y4
	}
	return errorRatio(r.cfg, y, r.yTrial, r.errEst)
}

func (r *rk45) Step(fn RHS, t, dt float64, y []float64) (float64, float64, error) {
	r.alloc(len(y))
	if dt > r.cfg.MaxStep {
		dt = r.cfg.MaxStep
	}

	for retry := 0; ; retry++ {
		ratio := r.attempt(fn, t, dt, y)
		if err := checkFinite(t+dt, r.yTrial); err != nil {
			return t, dt, err
		}
		if ratio <= 1 {
			copy(y, r.yTrial)
			if r.cfg.NonNegative {
				clamp(y)
			}
			r.stats.Steps++
			return t + dt, r.nextDt(dt, ratio), nil
		}
		r.stats.Rejected++
		if retry >= r.cfg.MaxRetries {
			return t, dt, &RejectedError{Time: t, Attempts: retry + 1, Ratio: ratio}
		}
		dt *= 0.5
		if dt < r.cfg.MinStep {
			return t, dt, &RejectedError{Time: t, Attempts: retry + 1, Ratio: ratio}
		}
	}
}

// nextDt grows the step after an accepted attempt: the standard safety
// factor 0.9 with fifth-order scaling, growth capped at 5x and cfg.MaxStep.
func (r *rk45) nextDt(dt, ratio float64) float64 {
	factor := 5.0
	if ratio > 0 {
		factor = 0.9 * math.Pow(ratio, -0.2)
		factor = math.Min(5.0, math.Max(0.2, factor))
	}
	next := dt * factor
	if next > r.cfg.MaxStep {
		next = r.cfg.MaxStep
	}
	if next < r.cfg.MinStep {
		next = r.cfg.MinStep
	}
	return next
}

func (r *rk45) Stats() Stats { return r.stats }
