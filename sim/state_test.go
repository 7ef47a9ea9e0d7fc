package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVector_RoundTrip(t *testing.T) {
	s := CompartmentState{A1: 10, A2: 4, A3: 1, Ce: 0.5}
	assert.Equal(t, s, StateFromVector(s.Vector()))
}

func TestAppend_KeepsTimeStrictlyIncreasing(t *testing.T) {
	var tr Trajectory
	tr.Append(Sample{Time: 0, Cp: 1})
	tr.Append(Sample{Time: 1, Cp: 2})

	// a coincident sample replaces the last one
	tr.Append(Sample{Time: 1, Cp: 3})
	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, 3.0, tr.Samples[1].Cp)

	// an out-of-order sample is dropped
	tr.Append(Sample{Time: 0.5, Cp: 9})
	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, 1.0, tr.Samples[1].Time)
}

func TestAt_InterpolatesBetweenSamples(t *testing.T) {
	var tr Trajectory
	tr.Append(Sample{Time: 0, A1: 10, Cp: 2, Ce: 0, Rate: 1})
	tr.Append(Sample{Time: 2, A1: 6, Cp: 1, Ce: 0.4, Rate: 3})

	got := tr.At(1)
	assert.Equal(t, 1.0, got.Time)
	assert.InDelta(t, 8.0, got.A1, 1e-12)
	assert.InDelta(t, 1.5, got.Cp, 1e-12)
	assert.InDelta(t, 0.2, got.Ce, 1e-12)
	// rate is piecewise constant, carried from the left sample
	assert.Equal(t, 1.0, got.Rate)
}

func TestAt_ClampsOutsideRecordedRange(t *testing.T) {
	var tr Trajectory
	tr.Append(Sample{Time: 1, Cp: 5})
	tr.Append(Sample{Time: 3, Cp: 7})

	assert.Equal(t, 5.0, tr.At(0).Cp)
	assert.Equal(t, 7.0, tr.At(10).Cp)
}

func TestAt_EmptyTrajectory(t *testing.T) {
	var tr Trajectory
	got := tr.At(4)
	assert.Equal(t, Sample{Time: 4}, got)
}
