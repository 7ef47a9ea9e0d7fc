package solver

// rk4 is the classic fixed-step fourth-order Runge–Kutta method.
type rk4 struct {
	cfg   Config
	stats Stats
	// scratch buffers, reused across steps
	k1, k2, k3, k4, tmp []float64
}

func newRK4(cfg Config) *rk4 {
	return &rk4{cfg: cfg}
}

func (r *rk4) alloc(n int) {
	if r.k1 != nil {
		return
	}
	r.k1 = make([]float64, n)
	r.k2 = make([]float64, n)
	r.k3 = make([]float64, n)
	r.k4 = make([]float64, n)
	r.tmp = make([]float64, n)
}

func (r *rk4) Step(fn RHS, t, dt float64, y []float64) (float64, float64, error) {
	r.alloc(len(y))

	fn(t, y, r.k1)
	for i := range y {
		r.tmp[i] = y[i] + 0.5*dt*r.k1[i]
	}
	fn(t+0.5*dt, r.tmp, r.k2)
	for i := range y {
		r.tmp[i] = y[i] + 0.5*dt*r.k2[i]
	}
	fn(t+0.5*dt, r.tmp, r.k3)
	for i := range y {
		r.tmp[i] = y[i] + dt*r.k3[i]
	}
	fn(t+dt, r.tmp, r.k4)
	r.stats.Evals += 4

	for i := range y {
		y[i] += dt / 6.0 * (r.k1[i] + 2*r.k2[i] + 2*r.k3[i] + r.k4[i])
	}
	if err := checkFinite(t+dt, y); err != nil {
		return t, dt, err
	}
	if r.cfg.NonNegative {
		clamp(y)
	}
	r.stats.Steps++
	// fixed method: consume exactly dt, suggest the nominal step
	return t + dt, r.cfg.InitDt, nil
}

func (r *rk4) Stats() Stats { return r.stats }
