package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// triangleTrajectory ramps Ce linearly 0 → 1 over [0, 10] and back down to
// 0 over [10, 20], sampled every minute.
func triangleTrajectory() *Trajectory {
	var tr Trajectory
	for i := 0; i <= 20; i++ {
		ce := float64(i) / 10
		if i > 10 {
			ce = float64(20-i) / 10
		}
		tr.Append(Sample{Time: float64(i), Ce: ce, Cp: ce * 2})
	}
	return &tr
}

func TestDetectEvents_InterpolatesCrossingTimes(t *testing.T) {
	// GIVEN a triangle wave and the clinical default thresholds
	tr := triangleTrajectory()

	// WHEN events are detected
	events := DetectEvents(tr, DefaultThresholds())

	// THEN the rising 0.5 crossing lands at t=5 and the falling 0.345
	// crossing on the way down at t=16.55, both sub-sample interpolated
	require.Len(t, events, 2)

	assert.Equal(t, "induction", events[0].Kind)
	assert.Equal(t, Rising, events[0].Direction)
	assert.InDelta(t, 5.0, events[0].Time, 1e-9)
	assert.Equal(t, 0.5, events[0].Concentration)

	assert.Equal(t, "extubation-ready", events[1].Kind)
	assert.Equal(t, Falling, events[1].Direction)
	assert.InDelta(t, 16.55, events[1].Time, 1e-9)
}

func TestDetectEvents_ReportsEveryCrossingInTimeOrder(t *testing.T) {
	// two full excursions above the threshold
	var tr Trajectory
	for i, ce := range []float64{0, 1, 0, 1, 0} {
		tr.Append(Sample{Time: float64(i), Ce: ce})
	}

	events := DetectEvents(&tr, []Threshold{
		{Kind: "up", Signal: SignalCe, Value: 0.5, Direction: Rising},
		{Kind: "down", Signal: SignalCe, Value: 0.5, Direction: Falling},
	})

	require.Len(t, events, 4)
	assert.Equal(t, []string{"up", "down", "up", "down"},
		[]string{events[0].Kind, events[1].Kind, events[2].Kind, events[3].Kind})
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Time, events[i-1].Time)
	}
}

func TestDetectEvents_PlasmaSignal(t *testing.T) {
	tr := triangleTrajectory()

	events := DetectEvents(tr, []Threshold{
		{Kind: "cp-peak", Signal: SignalCp, Value: 1.0, Direction: Rising},
	})

	// Cp is twice Ce so it reaches 1.0 at t=5
	require.Len(t, events, 1)
	assert.InDelta(t, 5.0, events[0].Time, 1e-9)
}

func TestDetectEvents_NoCrossing(t *testing.T) {
	var tr Trajectory
	tr.Append(Sample{Time: 0, Ce: 0.1})
	tr.Append(Sample{Time: 1, Ce: 0.2})

	events := DetectEvents(&tr, DefaultThresholds())
	assert.Empty(t, events)
}

func TestDetectEvents_TouchCountsOnceOnArrivalDirection(t *testing.T) {
	// the signal lands exactly on the threshold and retreats
	var tr Trajectory
	tr.Append(Sample{Time: 0, Ce: 0.4})
	tr.Append(Sample{Time: 1, Ce: 0.5})
	tr.Append(Sample{Time: 2, Ce: 0.4})

	events := DetectEvents(&tr, []Threshold{
		{Kind: "touch", Signal: SignalCe, Value: 0.5, Direction: Rising},
	})

	require.Len(t, events, 1)
	assert.InDelta(t, 1.0, events[0].Time, 1e-9)
}
