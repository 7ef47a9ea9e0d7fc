package sim

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ysuzuki1978/remimazolam-tci-simulator-sub002/sim/dosing"
	"github.com/ysuzuki1978/remimazolam-tci-simulator-sub002/sim/solver"
)

// Scenario is a reproducible run description, loadable from a YAML file:
// patient, dosing (open-loop protocol or TCI target schedule), event
// thresholds, and solver settings. Nil pointer fields mean "not set" and
// fall back to the documented defaults.
type Scenario struct {
	Patient        PatientSpec     `yaml:"patient"`
	Protocol       *ProtocolSpec   `yaml:"protocol,omitempty"`
	TCI            *TCISpec        `yaml:"tci,omitempty"`
	Events         []ThresholdSpec `yaml:"events,omitempty"`
	Solver         SolverSpec      `yaml:"solver,omitempty"`
	Horizon        float64         `yaml:"horizon"`
	OutputInterval float64         `yaml:"output_interval,omitempty"`
	Strict         bool            `yaml:"strict,omitempty"`
}

// PatientSpec mirrors PatientCovariates in YAML-friendly form.
type PatientSpec struct {
	Age    float64 `yaml:"age"`
	Weight float64 `yaml:"weight"`
	Height float64 `yaml:"height"`
	Sex    string  `yaml:"sex"` // "male" or "female"
	ASAPS  int     `yaml:"asa_ps"`
}

// ProtocolSpec lists the dosing phases of an open-loop run.
type ProtocolSpec struct {
	Boluses   []BolusSpec    `yaml:"boluses,omitempty"`
	Infusions []InfusionSpec `yaml:"infusions,omitempty"`
}

type BolusSpec struct {
	At     float64 `yaml:"at"`
	Amount float64 `yaml:"amount"`
}

type InfusionSpec struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
	Rate  float64 `yaml:"rate"`
}

// TCISpec configures a closed-loop run.
type TCISpec struct {
	Target          string         `yaml:"target"` // "plasma" or "effect_site"
	ControlInterval *float64       `yaml:"control_interval,omitempty"`
	MaxRate         *float64       `yaml:"max_rate,omitempty"`
	Setpoints       []SetpointSpec `yaml:"setpoints"`
}

type SetpointSpec struct {
	Time  float64 `yaml:"time"`
	Value float64 `yaml:"value"`
}

// ThresholdSpec configures one event threshold.
type ThresholdSpec struct {
	Kind      string  `yaml:"kind"`
	Signal    string  `yaml:"signal"` // "ce" (default) or "cp"
	Value     float64 `yaml:"value"`
	Direction string  `yaml:"direction"` // "rising" or "falling"
}

// SolverSpec configures the integrator. Nil fields use the defaults.
type SolverSpec struct {
	Method     string   `yaml:"method,omitempty"`
	DtInit     *float64 `yaml:"dt_init,omitempty"`
	MinStep    *float64 `yaml:"min_step,omitempty"`
	MaxStep    *float64 `yaml:"max_step,omitempty"`
	AbsTol     *float64 `yaml:"abs_tol,omitempty"`
	RelTol     *float64 `yaml:"rel_tol,omitempty"`
	MaxRetries *int     `yaml:"max_retries,omitempty"`
}

// LoadScenario reads and parses a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &sc, nil
}

// Covariates converts the patient spec, validating the sex name.
func (sc *Scenario) Covariates() (PatientCovariates, error) {
	p := PatientCovariates{
		Age:      sc.Patient.Age,
		WeightKg: sc.Patient.Weight,
		HeightCm: sc.Patient.Height,
		ASAPS:    sc.Patient.ASAPS,
	}
	switch sc.Patient.Sex {
	case "male", "":
		p.Sex = SexMale
	case "female":
		p.Sex = SexFemale
	default:
		return p, fmt.Errorf("%w: unknown sex %q", ErrInvalidCovariate, sc.Patient.Sex)
	}
	return p, p.Validate()
}

// RunConfig assembles the run configuration from the spec, filling unset
// solver fields with their defaults.
func (sc *Scenario) RunConfig() RunConfig {
	cfg := DefaultRunConfig()
	if sc.Horizon > 0 {
		cfg.Horizon = sc.Horizon
	}
	cfg.OutputInterval = sc.OutputInterval
	cfg.Strict = sc.Strict
	if sc.Solver.Method != "" {
		cfg.Method = solver.Method(sc.Solver.Method)
	}
	if sc.Solver.DtInit != nil {
		cfg.Solver.InitDt = *sc.Solver.DtInit
	}
	if sc.Solver.MinStep != nil {
		cfg.Solver.MinStep = *sc.Solver.MinStep
	}
	if sc.Solver.MaxStep != nil {
		cfg.Solver.MaxStep = *sc.Solver.MaxStep
	}
	if sc.Solver.AbsTol != nil {
		cfg.Solver.AbsTol = *sc.Solver.AbsTol
	}
	if sc.Solver.RelTol != nil {
		cfg.Solver.RelTol = *sc.Solver.RelTol
	}
	if sc.Solver.MaxRetries != nil {
		cfg.Solver.MaxRetries = *sc.Solver.MaxRetries
	}
	return cfg
}

// Thresholds converts the event specs, or the clinical defaults when the
// scenario lists none.
func (sc *Scenario) Thresholds() []Threshold {
	if len(sc.Events) == 0 {
		return DefaultThresholds()
	}
	out := make([]Threshold, 0, len(sc.Events))
	for _, ev := range sc.Events {
		th := Threshold{Kind: ev.Kind, Signal: SignalCe, Value: ev.Value, Direction: Direction(ev.Direction)}
		if ev.Signal == string(SignalCp) {
			th.Signal = SignalCp
		}
		out = append(out, th)
	}
	return out
}

// Validate checks cross-field consistency: exactly one dosing mode, known
// names, positive horizon.
func (sc *Scenario) Validate() error {
	if _, err := sc.Covariates(); err != nil {
		return err
	}
	if (sc.Protocol == nil) == (sc.TCI == nil) {
		return fmt.Errorf("scenario must set exactly one of protocol or tci")
	}
	for i, ev := range sc.Events {
		if ev.Direction != string(Rising) && ev.Direction != string(Falling) {
			return fmt.Errorf("event %d: unknown direction %q", i, ev.Direction)
		}
		if ev.Signal != "" && ev.Signal != string(SignalCe) && ev.Signal != string(SignalCp) {
			return fmt.Errorf("event %d: unknown signal %q", i, ev.Signal)
		}
	}
	return sc.RunConfig().Validate()
}

// BuildSimulator derives the PK model and assembles the simulator for this
// scenario. An out-of-band ke0 is a warning unless strict is set; a
// non-physiological parameter set is always fatal because derivation yields
// no usable parameters for it.
func (sc *Scenario) BuildSimulator() (*Simulator, error) {
	covariates, err := sc.Covariates()
	if err != nil {
		return nil, err
	}
	params, err := DeriveModel(covariates)
	if err != nil && (sc.Strict || !errors.Is(err, ErrKe0OutOfRange)) {
		return nil, err
	}

	cfg := sc.RunConfig()
	if sc.TCI != nil {
		tci := DefaultTCIConfig()
		if sc.TCI.Target != "" {
			tci.Target = TargetKind(sc.TCI.Target)
		}
		if sc.TCI.ControlInterval != nil {
			tci.ControlInterval = *sc.TCI.ControlInterval
		}
		if sc.TCI.MaxRate != nil {
			tci.MaxRate = *sc.TCI.MaxRate
		}
		for _, sp := range sc.TCI.Setpoints {
			tci.Setpoints = append(tci.Setpoints, Setpoint{Time: sp.Time, Value: sp.Value})
		}
		return NewTCISimulator(params, tci, cfg)
	}

	protocol := dosing.Protocol{}
	for _, b := range sc.Protocol.Boluses {
		protocol.Boluses = append(protocol.Boluses, dosing.Bolus{At: b.At, Amount: b.Amount})
	}
	for _, inf := range sc.Protocol.Infusions {
		protocol.Infusions = append(protocol.Infusions, dosing.Infusion{Start: inf.Start, End: inf.End, Rate: inf.Rate})
	}
	return NewProtocolSimulator(params, protocol, cfg)
}
