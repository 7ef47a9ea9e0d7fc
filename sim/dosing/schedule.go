package dosing

import "sort"

// Schedule is a compiled protocol: a single piecewise-constant rate
// function plus the bolus instants and the time points an integrator must
// land on exactly. Immutable after Compile.
type Schedule struct {
	// edges[i] is the start of segment i; rates[i] holds until edges[i+1]
	// (the last segment extends to +inf with rate zero appended).
	edges   []float64
	rates   []float64
	boluses []Bolus
	breaks  []float64
}

// Compile validates the protocol and resolves its phases into a Schedule.
func Compile(p Protocol) (*Schedule, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	infusions := sortedInfusions(p.Infusions)

	s := &Schedule{boluses: sortedBoluses(p.Boluses)}
	s.edges = append(s.edges, 0)
	s.rates = append(s.rates, 0)
	for _, inf := range infusions {
		s.pushSegment(inf.Start, inf.Rate)
		s.pushSegment(inf.End, 0)
	}

	breakSet := map[float64]bool{}
	for _, e := range s.edges {
		breakSet[e] = true
	}
	for _, b := range s.boluses {
		breakSet[b.At] = true
	}
	for t := range breakSet {
		s.breaks = append(s.breaks, t)
	}
	sort.Float64s(s.breaks)
	return s, nil
}

// pushSegment starts a new constant-rate segment at t, collapsing
// zero-length and equal-rate segments.
func (s *Schedule) pushSegment(t, rate float64) {
	n := len(s.edges)
	if s.edges[n-1] == t {
		s.rates[n-1] = rate
		return
	}
	if s.rates[n-1] == rate {
		return
	}
	s.edges = append(s.edges, t)
	s.rates = append(s.rates, rate)
}

// RateAt returns the infusion rate at time t. O(log n) interval lookup;
// segments are left-closed, so RateAt(start) already returns the new rate.
func (s *Schedule) RateAt(t float64) float64 {
	if t < s.edges[0] {
		return 0
	}
	// first index with edge > t, minus one
	i := sort.SearchFloat64s(s.edges, t)
	if i == len(s.edges) || s.edges[i] > t {
		i--
	}
	return s.rates[i]
}

// Boluses returns the bolus instants in time order.
func (s *Schedule) Boluses() []Bolus { return s.boluses }

// BolusesAt returns the total bolus amount scheduled exactly at t.
func (s *Schedule) BolusesAt(t float64) float64 {
	total := 0.0
	for _, b := range s.boluses {
		if b.At == t {
			total += b.Amount
		}
	}
	return total
}

// Breakpoints returns the sorted, de-duplicated time points where the rate
// changes or a bolus lands. The run loop splits integration segments here
// so every discontinuity is hit exactly.
func (s *Schedule) Breakpoints() []float64 { return s.breaks }

// End returns the time of the last rate change or bolus; zero for an
// all-zero protocol.
func (s *Schedule) End() float64 {
	if len(s.breaks) == 0 {
		return 0
	}
	return s.breaks[len(s.breaks)-1]
}
