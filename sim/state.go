package sim

// Compartment indices in the state vector handed to the solver.
const (
	idxA1 = iota // central compartment amount, mg
	idxA2        // shallow peripheral amount, mg
	idxA3        // deep peripheral amount, mg
	idxCe        // effect-site concentration, µg/mL
	stateDim
)

// CompartmentState is the authoritative drug state of one run. Amounts in
// mg, Ce in µg/mL. Mutated only by the integrator; one copy per run, never
// shared across concurrent simulations.
type CompartmentState struct {
	A1 float64
	A2 float64
	A3 float64
	Ce float64
}

// Vector copies the state into solver layout.
func (s CompartmentState) Vector() []float64 {
	return []float64{s.A1, s.A2, s.A3, s.Ce}
}

// StateFromVector converts solver layout back into a CompartmentState.
func StateFromVector(y []float64) CompartmentState {
	return CompartmentState{A1: y[idxA1], A2: y[idxA2], A3: y[idxA3], Ce: y[idxCe]}
}

// compartmentName maps a state-vector index to its clinical name, for
// divergence diagnostics.
func compartmentName(i int) string {
	switch i {
	case idxA1:
		return "A1 (central)"
	case idxA2:
		return "A2 (shallow peripheral)"
	case idxA3:
		return "A3 (deep peripheral)"
	case idxCe:
		return "Ce (effect site)"
	}
	return "unknown"
}

// Sample is one timestamped point of a Trajectory.
type Sample struct {
	Time float64 // minutes
	A1   float64 // mg
	A2   float64 // mg
	A3   float64 // mg
	Cp   float64 // plasma concentration A1/V1, µg/mL
	Ce   float64 // effect-site concentration, µg/mL
	Rate float64 // instantaneous infusion rate, mg/min
}

// Trajectory is the ordered, append-only record of a single run. Time is
// strictly increasing across samples; the trajectory is discarded and
// rebuilt per run.
type Trajectory struct {
	Samples []Sample
}

// Append adds a sample, keeping time strictly increasing: a sample at the
// time of the last one replaces it (bolus instants and exact segment
// boundaries produce coincident commits), earlier times are dropped.
func (tr *Trajectory) Append(s Sample) {
	n := len(tr.Samples)
	if n > 0 {
		last := tr.Samples[n-1].Time
		if s.Time == last {
			tr.Samples[n-1] = s
			return
		}
		if s.Time < last {
			return
		}
	}
	tr.Samples = append(tr.Samples, s)
}

// Len returns the number of recorded samples.
func (tr *Trajectory) Len() int { return len(tr.Samples) }

// At linearly interpolates the trajectory at time t. Times outside the
// recorded range are clamped to the first/last sample.
func (tr *Trajectory) At(t float64) Sample {
	samples := tr.Samples
	if len(samples) == 0 {
		return Sample{Time: t}
	}
	if t <= samples[0].Time {
		return samples[0]
	}
	if t >= samples[len(samples)-1].Time {
		return samples[len(samples)-1]
	}
	// binary search for the bracketing pair
	lo, hi := 0, len(samples)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if samples[mid].Time <= t {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lerpSample(samples[lo], samples[hi], t)
}

func lerpSample(a, b Sample, t float64) Sample {
	f := (t - a.Time) / (b.Time - a.Time)
	return Sample{
		Time: t,
		A1:   a.A1 + f*(b.A1-a.A1),
		A2:   a.A2 + f*(b.A2-a.A2),
		A3:   a.A3 + f*(b.A3-a.A3),
		Cp:   a.Cp + f*(b.Cp-a.Cp),
		Ce:   a.Ce + f*(b.Ce-a.Ce),
		Rate: a.Rate, // piecewise-constant, left-continuous
	}
}
