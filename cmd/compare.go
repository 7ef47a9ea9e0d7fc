package cmd

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/ysuzuki1978/remimazolam-tci-simulator-sub002/sim"
	"github.com/ysuzuki1978/remimazolam-tci-simulator-sub002/sim/solver"
)

// compareMethods is the evaluation order; rk45 runs first and serves as
// the reference trajectory for the deviation report.
var compareMethods = []solver.Method{solver.RK45, solver.Euler, solver.RK4, solver.Stiff}

// compareCmd runs one scenario under every integrator in parallel and
// reports per-method work counters and worst-case deviation from the
// adaptive Dormand–Prince reference.
var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run one scenario under every solver method and compare trajectories",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		scenario, err := loadScenario()
		if err != nil {
			logrus.Fatalf("loading scenario: %v", err)
		}
		// comparable trajectories need a common time grid
		if scenario.OutputInterval <= 0 {
			scenario.OutputInterval = 0.1
		}
		if err := scenario.Validate(); err != nil {
			logrus.Fatalf("invalid scenario: %v", err)
		}

		specs := make([]sim.RunSpec, 0, len(compareMethods))
		for _, m := range compareMethods {
			scCopy := *scenario
			scCopy.Solver.Method = string(m)
			simulator, err := scCopy.BuildSimulator()
			if err != nil {
				logrus.Fatalf("building %s simulator: %v", m, err)
			}
			specs = append(specs, sim.RunSpec{Name: string(m), Simulator: simulator})
		}

		results, err := sim.RunAll(context.Background(), specs, 0)
		if err != nil {
			logrus.Fatalf("comparison run failed: %v", err)
		}

		reference := results[0]
		fmt.Println("=== Solver Comparison ===")
		fmt.Printf("%-8s %10s %10s %10s %12s %12s\n", "method", "steps", "rejected", "evals", "max |dCp|", "max |dCe|")
		for i, res := range results {
			dCp, dCe := trajectoryDeviation(&reference.Trajectory, &res.Trajectory)
			fmt.Printf("%-8s %10d %10d %10d %12.3g %12.3g\n",
				specs[i].Name, res.Metrics.Steps, res.Metrics.RejectedSteps, res.Metrics.RHSEvals, dCp, dCe)
		}
	},
}

// trajectoryDeviation measures the worst Cp and Ce gaps between two runs
// on the reference sample times.
func trajectoryDeviation(ref, other *sim.Trajectory) (maxDCp, maxDCe float64) {
	for _, s := range ref.Samples {
		o := other.At(s.Time)
		if d := math.Abs(s.Cp - o.Cp); d > maxDCp {
			maxDCp = d
		}
		if d := math.Abs(s.Ce - o.Ce); d > maxDCe {
			maxDCe = d
		}
	}
	return maxDCp, maxDCe
}
