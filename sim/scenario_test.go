package sim

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ysuzuki1978/remimazolam-tci-simulator-sub002/sim/solver"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario_ProtocolRun(t *testing.T) {
	// GIVEN a full open-loop scenario file
	path := writeScenario(t, `
patient:
  age: 55
  weight: 70
  height: 170
  sex: male
  asa_ps: 0
protocol:
  boluses:
    - at: 0
      amount: 10
  infusions:
    - start: 0
      end: 15
      rate: 1.5
solver:
  method: rk45
  abs_tol: 1e-6
horizon: 30
output_interval: 0.5
`)

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	require.NoError(t, sc.Validate())

	cfg := sc.RunConfig()
	assert.Equal(t, 30.0, cfg.Horizon)
	assert.Equal(t, 0.5, cfg.OutputInterval)
	assert.Equal(t, solver.RK45, cfg.Method)
	assert.Equal(t, 1e-6, cfg.Solver.AbsTol)
	// unset solver fields keep their defaults
	assert.Equal(t, 1e-4, cfg.Solver.RelTol)

	// AND the assembled simulator runs clean end to end
	s, err := sc.BuildSimulator()
	require.NoError(t, err)
	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10.0, result.Metrics.TotalBolus)
}

func TestLoadScenario_TCIRun(t *testing.T) {
	path := writeScenario(t, `
patient:
  age: 40
  weight: 60
  height: 165
  sex: female
  asa_ps: 2
tci:
  target: effect_site
  max_rate: 12
  setpoints:
    - time: 0
      value: 1.0
horizon: 20
`)

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	require.NoError(t, sc.Validate())

	s, err := sc.BuildSimulator()
	require.NoError(t, err)
	require.NotNil(t, s.Controller)
	assert.Equal(t, 12.0, s.Controller.Config().MaxRate)
	assert.Equal(t, TargetEffectSite, s.Controller.Config().Target)
	// unset controller fields keep their defaults
	assert.Equal(t, 0.5, s.Controller.Config().ControlInterval)
}

func TestScenario_Thresholds(t *testing.T) {
	sc := &Scenario{}
	assert.Equal(t, DefaultThresholds(), sc.Thresholds())

	sc.Events = []ThresholdSpec{
		{Kind: "deep", Signal: "cp", Value: 2.0, Direction: "rising"},
		{Kind: "light", Value: 0.2, Direction: "falling"},
	}
	ths := sc.Thresholds()
	require.Len(t, ths, 2)
	assert.Equal(t, SignalCp, ths[0].Signal)
	// signal defaults to effect-site
	assert.Equal(t, SignalCe, ths[1].Signal)
}

func TestScenario_ValidateRejections(t *testing.T) {
	valid := func() *Scenario {
		return &Scenario{
			Patient:  PatientSpec{Age: 55, Weight: 70, Height: 170, Sex: "male"},
			Protocol: &ProtocolSpec{Boluses: []BolusSpec{{At: 0, Amount: 5}}},
			Horizon:  30,
		}
	}

	cases := []struct {
		name   string
		mutate func(*Scenario)
	}{
		{"unknown sex", func(sc *Scenario) { sc.Patient.Sex = "other" }},
		{"no dosing mode", func(sc *Scenario) { sc.Protocol = nil }},
		{"both dosing modes", func(sc *Scenario) {
			sc.TCI = &TCISpec{Setpoints: []SetpointSpec{{Time: 0, Value: 1}}}
		}},
		{"bad event direction", func(sc *Scenario) {
			sc.Events = []ThresholdSpec{{Kind: "x", Value: 1, Direction: "sideways"}}
		}},
		{"bad event signal", func(sc *Scenario) {
			sc.Events = []ThresholdSpec{{Kind: "x", Signal: "bis", Value: 1, Direction: "rising"}}
		}},
		{"unknown solver method", func(sc *Scenario) { sc.Solver.Method = "leapfrog" }},
		{"invalid covariates", func(sc *Scenario) { sc.Patient.Age = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc := valid()
			tc.mutate(sc)
			assert.Error(t, sc.Validate())
		})
	}
}

func TestBuildSimulator_NonPhysiologicalIsAlwaysFatal(t *testing.T) {
	// GIVEN a patient whose ASA-PS class drives clearance negative, which
	// derivation rejects without producing usable parameters
	sc := &Scenario{
		Patient:  PatientSpec{Age: 55, Weight: 70, Height: 170, Sex: "male", ASAPS: 6},
		Protocol: &ProtocolSpec{Boluses: []BolusSpec{{At: 0, Amount: 5}}},
		Horizon:  10,
	}

	// WHEN building without strict mode
	_, err := sc.BuildSimulator()

	// THEN the derivation failure still surfaces instead of a zero-volume
	// model that would blow up on the first step
	assert.ErrorIs(t, err, ErrNonPhysiological)
}

func TestBuildSimulator_Ke0WarningGatedByStrict(t *testing.T) {
	// GIVEN covariates with a valid parameter set but an out-of-band ke0
	scenario := func(strict bool) *Scenario {
		return &Scenario{
			Patient:  PatientSpec{Age: 2000, Weight: 70, Height: 170, Sex: "male"},
			Protocol: &ProtocolSpec{Boluses: []BolusSpec{{At: 0, Amount: 5}}},
			Horizon:  10,
			Strict:   strict,
		}
	}

	// THEN the default build warns and continues
	s, err := scenario(false).BuildSimulator()
	require.NoError(t, err)
	require.NotNil(t, s)

	// AND strict mode promotes the warning to a failure
	_, err = scenario(true).BuildSimulator()
	assert.ErrorIs(t, err, ErrKe0OutOfRange)
}

func TestLoadScenario_Errors(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	path := writeScenario(t, "patient: [not, a, mapping]")
	_, err = LoadScenario(path)
	assert.Error(t, err)
}

func TestScenario_DefaultHorizonAndSex(t *testing.T) {
	sc := &Scenario{
		Patient:  PatientSpec{Age: 55, Weight: 70, Height: 170},
		Protocol: &ProtocolSpec{},
	}
	require.NoError(t, sc.Validate())

	// empty sex reads as male, zero horizon falls back to the default
	cov, err := sc.Covariates()
	require.NoError(t, err)
	assert.Equal(t, SexMale, cov.Sex)
	assert.Equal(t, 60.0, sc.RunConfig().Horizon)
}
