package solver

// euler is fixed-step forward Euler. Cheapest per step, first-order
// accurate; kept as the convergence baseline for method comparison.
type euler struct {
	cfg   Config
	stats Stats
	dy    []float64
}

func newEuler(cfg Config) *euler {
	return &euler{cfg: cfg}
}

func (e *euler) Step(fn RHS, t, dt float64, y []float64) (float64, float64, error) {
	if e.dy == nil {
		e.dy = make([]float64, len(y))
	}
	fn(t, y, e.dy)
	e.stats.Evals++
	for i := range y {
		y[i] += dt * e.dy[i]
	}
	if err := checkFinite(t+dt, y); err != nil {
		return t, dt, err
	}
	if e.cfg.NonNegative {
		clamp(y)
	}
	e.stats.Steps++
	// fixed method: consume exactly dt, keep suggesting the nominal step
	// so a truncated segment-end step does not shrink later segments
	return t + dt, e.cfg.InitDt, nil
}

func (e *euler) Stats() Stats { return e.stats }
