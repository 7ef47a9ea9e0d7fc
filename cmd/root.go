package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/ysuzuki1978/remimazolam-tci-simulator-sub002/sim"
	"github.com/ysuzuki1978/remimazolam-tci-simulator-sub002/sim/solver"
)

var (
	// CLI flags shared by the subcommands
	logLevel     string  // Log verbosity level
	scenarioPath string  // YAML scenario file (overrides the patient/dosing flags)
	horizon      float64 // Simulated time horizon (minutes)

	// Patient covariates
	age    float64 // Age (years)
	weight float64 // Total body weight (kg)
	height float64 // Height (cm)
	sex    string  // "male" or "female"
	asaPS  int     // ASA physical-status class (0 = healthiest)

	// Open-loop dosing
	bolusAmount      float64 // Bolus at t=0 (mg)
	infusionRate     float64 // Constant infusion rate (mg/min)
	infusionDuration float64 // Infusion duration from t=0 (minutes)

	// TCI dosing (takes precedence over the open-loop flags when set)
	targetCe float64 // Effect-site target (ug/mL), 0 = disabled
	targetCp float64 // Plasma target (ug/mL), 0 = disabled
	maxRate  float64 // Infusion rate cap (mg/min)

	// Solver configs
	method     string  // Integrator: euler, rk4, rk45, stiff
	dtInit     float64 // Initial/fixed step size (minutes)
	absTol     float64 // Absolute tolerance (ug/mL-scale)
	relTol     float64 // Relative tolerance
	maxRetries int     // Step-halving retries before rejection
	outputTick float64 // Fixed output interval (minutes), 0 = every step
	strict     bool    // Promote plausibility warnings to failures
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "remimazolam-tci-sim",
	Short: "PK/PD simulator for remimazolam target-controlled infusion",
}

// setupLogging applies the --log flag before any subcommand runs.
func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// patientFromFlags assembles the covariates from CLI flags.
func patientFromFlags() sim.PatientCovariates {
	p := sim.PatientCovariates{Age: age, WeightKg: weight, HeightCm: height, ASAPS: asaPS}
	if sex == "female" {
		p.Sex = sim.SexFemale
	}
	return p
}

// scenarioFromFlags builds the equivalent of a scenario file from the
// individual CLI flags.
func scenarioFromFlags() *sim.Scenario {
	sc := &sim.Scenario{
		Patient: sim.PatientSpec{Age: age, Weight: weight, Height: height, Sex: sex, ASAPS: asaPS},
		Solver: sim.SolverSpec{
			Method: method, DtInit: &dtInit, AbsTol: &absTol, RelTol: &relTol, MaxRetries: &maxRetries,
		},
		Horizon:        horizon,
		OutputInterval: outputTick,
		Strict:         strict,
	}
	if targetCe > 0 || targetCp > 0 {
		tci := &sim.TCISpec{Target: string(sim.TargetEffectSite), MaxRate: &maxRate}
		value := targetCe
		if targetCp > 0 {
			tci.Target = string(sim.TargetPlasma)
			value = targetCp
		}
		tci.Setpoints = []sim.SetpointSpec{{Time: 0, Value: value}}
		sc.TCI = tci
		return sc
	}
	protocol := &sim.ProtocolSpec{}
	if bolusAmount > 0 {
		protocol.Boluses = append(protocol.Boluses, sim.BolusSpec{At: 0, Amount: bolusAmount})
	}
	if infusionRate > 0 && infusionDuration > 0 {
		protocol.Infusions = append(protocol.Infusions, sim.InfusionSpec{Start: 0, End: infusionDuration, Rate: infusionRate})
	}
	sc.Protocol = protocol
	return sc
}

// loadScenario resolves the effective scenario: file if given, flags
// otherwise.
func loadScenario() (*sim.Scenario, error) {
	if scenarioPath != "" {
		return sim.LoadScenario(scenarioPath)
	}
	return scenarioFromFlags(), nil
}

// runCmd executes one simulation and reports the trajectory summary,
// metrics, and detected critical events.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one TCI simulation",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		scenario, err := loadScenario()
		if err != nil {
			logrus.Fatalf("loading scenario: %v", err)
		}
		if err := scenario.Validate(); err != nil {
			logrus.Fatalf("invalid scenario: %v", err)
		}
		simulator, err := scenario.BuildSimulator()
		if err != nil {
			logrus.Fatalf("building simulator: %v", err)
		}

		printParams(simulator.System.Params)

		result, err := simulator.Run(context.Background())
		if err != nil {
			// partial trajectory is preserved; report how far we got
			logrus.Errorf("run failed: %v", err)
		}
		result.Metrics.Print()

		events := sim.DetectEvents(&result.Trajectory, scenario.Thresholds())
		fmt.Println("=== Critical Events ===")
		if len(events) == 0 {
			fmt.Println("(none)")
		}
		for _, ev := range events {
			fmt.Printf("%-20s %7.2f min  %s through %.3f ug/mL\n", ev.Kind, ev.Time, ev.Direction, ev.Concentration)
		}
		if err != nil {
			os.Exit(1)
		}
	},
}

func printParams(p sim.PKParameters) {
	fmt.Println("=== PK Parameters ===")
	fmt.Printf("V1  : %7.3f L\n", p.V1)
	fmt.Printf("V2  : %7.3f L\n", p.V2)
	fmt.Printf("V3  : %7.3f L\n", p.V3)
	fmt.Printf("CL  : %7.3f L/min\n", p.CL)
	fmt.Printf("Q2  : %7.3f L/min\n", p.Q2)
	fmt.Printf("Q3  : %7.3f L/min\n", p.Q3)
	fmt.Printf("ke0 : %7.4f /min\n", p.Ke0)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	for _, cmd := range []*cobra.Command{runCmd, compareCmd, paramsCmd} {
		cmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

		// patient covariates
		cmd.Flags().Float64Var(&age, "age", 55, "Age (years)")
		cmd.Flags().Float64Var(&weight, "weight", 70, "Total body weight (kg)")
		cmd.Flags().Float64Var(&height, "height", 170, "Height (cm)")
		cmd.Flags().StringVar(&sex, "sex", "male", "Sex (male, female)")
		cmd.Flags().IntVar(&asaPS, "asa-ps", 0, "ASA physical-status class (0 = healthiest)")
	}

	for _, cmd := range []*cobra.Command{runCmd, compareCmd} {
		cmd.Flags().StringVar(&scenarioPath, "scenario", "", "YAML scenario file (overrides dosing flags)")
		cmd.Flags().Float64Var(&horizon, "horizon", 60, "Simulated horizon (minutes)")

		// open-loop dosing
		cmd.Flags().Float64Var(&bolusAmount, "bolus", 0, "Bolus amount at t=0 (mg)")
		cmd.Flags().Float64Var(&infusionRate, "infusion-rate", 0, "Constant infusion rate (mg/min)")
		cmd.Flags().Float64Var(&infusionDuration, "infusion-duration", 0, "Infusion duration from t=0 (minutes)")

		// TCI dosing
		cmd.Flags().Float64Var(&targetCe, "target-ce", 0, "Effect-site target concentration (ug/mL)")
		cmd.Flags().Float64Var(&targetCp, "target-cp", 0, "Plasma target concentration (ug/mL)")
		cmd.Flags().Float64Var(&maxRate, "max-rate", 20, "Infusion rate cap (mg/min)")

		// solver configs
		cmd.Flags().StringVar(&method, "method", string(solver.RK45), "Integrator (euler, rk4, rk45, stiff)")
		cmd.Flags().Float64Var(&dtInit, "dt-init", 0.005, "Initial/fixed step size (minutes)")
		cmd.Flags().Float64Var(&absTol, "abs-tol", 1e-5, "Absolute tolerance")
		cmd.Flags().Float64Var(&relTol, "rel-tol", 1e-4, "Relative tolerance")
		cmd.Flags().IntVar(&maxRetries, "max-retries", 10, "Step-halving retries before rejection")
		cmd.Flags().Float64Var(&outputTick, "output-interval", 0, "Fixed output interval (minutes), 0 = every accepted step")
		cmd.Flags().BoolVar(&strict, "strict", false, "Promote plausibility warnings to failures")
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(paramsCmd)
}
