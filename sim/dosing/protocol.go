// Package dosing turns a declarative dosing protocol into a
// piecewise-constant infusion-rate function of time. Protocols are
// validated up front; a compiled Schedule is read-only for the lifetime of
// a run.
package dosing

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidProtocol reports a malformed protocol: negative doses,
// inverted intervals, or overlapping infusion phases. Detected before a
// simulation starts and never retried.
var ErrInvalidProtocol = errors.New("invalid protocol")

// Bolus is an amount added to the central compartment at an instant
// (idealized rapid infusion).
type Bolus struct {
	At     float64 // minutes
	Amount float64 // mg
}

// Infusion is a constant rate over a half-open interval [Start, End).
type Infusion struct {
	Start float64 // minutes
	End   float64 // minutes, > Start
	Rate  float64 // mg/min
}

// Protocol is the declarative dosing description for one run. Read-only
// input; gaps between infusions default to zero rate.
type Protocol struct {
	Boluses   []Bolus
	Infusions []Infusion
}

// Validate checks amounts, interval ordering, and infusion overlap.
func (p Protocol) Validate() error {
	for i, b := range p.Boluses {
		if b.At < 0 {
			return fmt.Errorf("%w: bolus %d at negative time %g", ErrInvalidProtocol, i, b.At)
		}
		if b.Amount < 0 {
			return fmt.Errorf("%w: bolus %d has negative amount %g", ErrInvalidProtocol, i, b.Amount)
		}
	}
	infusions := sortedInfusions(p.Infusions)
	for i, inf := range infusions {
		if inf.Start < 0 {
			return fmt.Errorf("%w: infusion %d starts at negative time %g", ErrInvalidProtocol, i, inf.Start)
		}
		if inf.End <= inf.Start {
			return fmt.Errorf("%w: infusion %d interval [%g, %g) is empty or inverted",
				ErrInvalidProtocol, i, inf.Start, inf.End)
		}
		if inf.Rate < 0 {
			return fmt.Errorf("%w: infusion %d has negative rate %g", ErrInvalidProtocol, i, inf.Rate)
		}
		if i > 0 && inf.Start < infusions[i-1].End {
			return fmt.Errorf("%w: infusions overlap at t=%g", ErrInvalidProtocol, inf.Start)
		}
	}
	return nil
}

func sortedInfusions(in []Infusion) []Infusion {
	out := make([]Infusion, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func sortedBoluses(in []Bolus) []Bolus {
	out := make([]Bolus, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].At < out[j].At })
	return out
}
