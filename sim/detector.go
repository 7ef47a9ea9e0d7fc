package sim

import "sort"

// Direction of a threshold crossing.
type Direction string

const (
	Rising  Direction = "rising"
	Falling Direction = "falling"
)

// Signal selects which concentration a threshold watches.
type Signal string

const (
	SignalCe Signal = "ce"
	SignalCp Signal = "cp"
)

// Threshold configures one clinically significant crossing to detect.
type Threshold struct {
	Kind      string // event label, e.g. "induction"
	Signal    Signal
	Value     float64 // µg/mL
	Direction Direction
}

// CriticalEvent is a detected crossing: derived, read-only, produced once
// per completed trajectory.
type CriticalEvent struct {
	Kind          string
	Time          float64 // interpolated crossing time, minutes
	Concentration float64 // the threshold concentration crossed, µg/mL
	Direction     Direction
}

// DefaultThresholds returns the clinical defaults: induction when Ce rises
// through 0.5 µg/mL and extubation readiness when Ce falls back through
// 0.345 µg/mL.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{Kind: "induction", Signal: SignalCe, Value: 0.5, Direction: Rising},
		{Kind: "extubation-ready", Signal: SignalCe, Value: 0.345, Direction: Falling},
	}
}

// DetectEvents scans a completed trajectory for the configured threshold
// crossings. Every crossing of every threshold is reported, in time order;
// the crossing time is linearly interpolated between the bracketing
// samples for sub-sample precision.
func DetectEvents(tr *Trajectory, thresholds []Threshold) []CriticalEvent {
	var events []CriticalEvent
	for _, th := range thresholds {
		events = append(events, detectOne(tr, th)...)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Time < events[j].Time })
	return events
}

func detectOne(tr *Trajectory, th Threshold) []CriticalEvent {
	var events []CriticalEvent
	samples := tr.Samples
	for i := 1; i < len(samples); i++ {
		v0 := signalValue(samples[i-1], th.Signal)
		v1 := signalValue(samples[i], th.Signal)

		var crossed bool
		switch th.Direction {
		case Rising:
			crossed = v0 < th.Value && v1 >= th.Value
		case Falling:
			crossed = v0 > th.Value && v1 <= th.Value
		}
		if !crossed {
			continue
		}
		events = append(events, CriticalEvent{
			Kind:          th.Kind,
			Time:          crossingTime(samples[i-1].Time, samples[i].Time, v0, v1, th.Value),
			Concentration: th.Value,
			Direction:     th.Direction,
		})
	}
	return events
}

func signalValue(s Sample, sig Signal) float64 {
	if sig == SignalCp {
		return s.Cp
	}
	return s.Ce
}

// crossingTime interpolates where the signal hit the threshold between two
// samples. A flat segment (v0 == v1) cannot bracket a crossing, but guard
// anyway and return the right edge.
func crossingTime(t0, t1, v0, v1, threshold float64) float64 {
	if v1 == v0 {
		return t1
	}
	return t0 + (threshold-v0)/(v1-v0)*(t1-t0)
}
