package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tciConfig(target TargetKind, value float64) TCIConfig {
	cfg := DefaultTCIConfig()
	cfg.Target = target
	cfg.Setpoints = []Setpoint{{Time: 0, Value: value}}
	return cfg
}

func TestTCIConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TCIConfig)
	}{
		{"unknown target", func(c *TCIConfig) { c.Target = "bispectral" }},
		{"no setpoints", func(c *TCIConfig) { c.Setpoints = nil }},
		{"negative setpoint", func(c *TCIConfig) { c.Setpoints[0].Value = -1 }},
		{"zero control interval", func(c *TCIConfig) { c.ControlInterval = 0 }},
		{"zero max rate", func(c *TCIConfig) { c.MaxRate = 0 }},
		{"non-increasing setpoint times", func(c *TCIConfig) {
			c.Setpoints = append(c.Setpoints, Setpoint{Time: 0, Value: 0.5})
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tciConfig(TargetEffectSite, 1.0)
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSetpointAt_SchedulesHoldUntilNextEntry(t *testing.T) {
	system := NewCompartmentSystem(referenceParams(t))
	cfg := DefaultTCIConfig()
	cfg.Setpoints = []Setpoint{{Time: 0, Value: 1.0}, {Time: 30, Value: 0.4}}
	c, err := NewTCIController(system, cfg)
	require.NoError(t, err)

	assert.Equal(t, 1.0, c.SetpointAt(0))
	assert.Equal(t, 1.0, c.SetpointAt(29.9))
	assert.Equal(t, 0.4, c.SetpointAt(30))
	assert.Equal(t, 0.4, c.SetpointAt(100))
	// before the first entry the first value applies
	assert.Equal(t, 1.0, c.SetpointAt(-1))
}

func TestRateFor_CappedFromEmptyState(t *testing.T) {
	// GIVEN an undosed patient and an ambitious effect-site target
	system := NewCompartmentSystem(referenceParams(t))
	c, err := NewTCIController(system, tciConfig(TargetEffectSite, 2.0))
	require.NoError(t, err)

	// THEN the analytic rate saturates at the cap
	rate := c.RateFor(CompartmentState{}, 0)
	assert.Equal(t, c.Config().MaxRate, rate)
}

func TestRateFor_ZeroWhenAboveTarget(t *testing.T) {
	system := NewCompartmentSystem(referenceParams(t))
	c, err := NewTCIController(system, tciConfig(TargetEffectSite, 0.5))
	require.NoError(t, err)

	rate := c.RateFor(CompartmentState{A1: 20, Ce: 2.0}, 0)
	assert.Zero(t, rate)
}

func TestTCI_EffectSiteTargetTracked(t *testing.T) {
	// GIVEN a 1.0 µg/mL effect-site target held for an hour
	cfg := DefaultRunConfig()
	cfg.OutputInterval = 0.5
	s, err := NewTCISimulator(referenceParams(t), tciConfig(TargetEffectSite, 1.0), cfg)
	require.NoError(t, err)

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Nil(t, result.Failure)

	// THEN once the induction transient settles Ce holds within 10% of
	// the target for the rest of the run
	for _, tm := range []float64{30, 40, 50, 60} {
		assert.InEpsilon(t, 1.0, result.Trajectory.At(tm).Ce, 0.10, "t=%g", tm)
	}

	// AND the controller respected the rate bounds throughout
	for _, sm := range result.Trajectory.Samples {
		assert.GreaterOrEqual(t, sm.Rate, 0.0)
		assert.LessOrEqual(t, sm.Rate, s.Controller.Config().MaxRate)
	}
	assert.Positive(t, result.Metrics.TotalInfused)
}

func TestTCI_PlasmaTargetTracked(t *testing.T) {
	// plasma targeting equilibrates much faster than effect-site
	cfg := DefaultRunConfig()
	cfg.Horizon = 30
	cfg.OutputInterval = 0.5
	s, err := NewTCISimulator(referenceParams(t), tciConfig(TargetPlasma, 1.0), cfg)
	require.NoError(t, err)

	result, err := s.Run(context.Background())
	require.NoError(t, err)

	for _, tm := range []float64{10, 20, 30} {
		assert.InEpsilon(t, 1.0, result.Trajectory.At(tm).Cp, 0.10, "t=%g", tm)
	}
}

func TestTCI_StepDownSetpoint(t *testing.T) {
	// GIVEN a target that steps down mid-run
	tci := DefaultTCIConfig()
	tci.Setpoints = []Setpoint{{Time: 0, Value: 1.0}, {Time: 40, Value: 0.5}}
	cfg := DefaultRunConfig()
	cfg.Horizon = 80
	cfg.OutputInterval = 0.5
	s, err := NewTCISimulator(referenceParams(t), tci, cfg)
	require.NoError(t, err)

	result, err := s.Run(context.Background())
	require.NoError(t, err)

	// THEN both plateaus are reached
	assert.InEpsilon(t, 1.0, result.Trajectory.At(38).Ce, 0.10)
	assert.InEpsilon(t, 0.5, result.Trajectory.At(78).Ce, 0.10)
}

func TestNewTCISimulator_RejectsBadConfig(t *testing.T) {
	_, err := NewTCISimulator(referenceParams(t), TCIConfig{}, DefaultRunConfig())
	assert.Error(t, err)
}
