package sim

import "fmt"

// RunMetrics aggregates statistics about one simulation run for final
// reporting: integrator work, peak concentrations, and the mass-balance
// bookkeeping (dose in = compartment mass + eliminated mass, within
// integration tolerance).
type RunMetrics struct {
	Steps         int // accepted integrator steps
	RejectedSteps int // rejected step attempts (adaptive methods)
	RHSEvals      int // derivative evaluations

	MaxCp float64 // peak plasma concentration, µg/mL
	MaxCe float64 // peak effect-site concentration, µg/mL

	TotalInfused     float64 // cumulative infusion input, mg
	TotalBolus       float64 // cumulative bolus input, mg
	Eliminated       float64 // integral of k10·A1, mg
	MassBalanceError float64 // worst |dose in − mass − eliminated| over all samples, mg

	Samples      int     // recorded trajectory samples
	SimEndedTime float64 // simulated time reached, minutes
}

// Print displays the aggregated metrics at the end of a run.
func (m *RunMetrics) Print() {
	fmt.Println("=== Simulation Metrics ===")
	fmt.Printf("Simulated time       : %.2f min\n", m.SimEndedTime)
	fmt.Printf("Accepted steps       : %d\n", m.Steps)
	fmt.Printf("Rejected steps       : %d\n", m.RejectedSteps)
	fmt.Printf("RHS evaluations      : %d\n", m.RHSEvals)
	fmt.Printf("Trajectory samples   : %d\n", m.Samples)
	fmt.Printf("Peak Cp              : %.4f ug/mL\n", m.MaxCp)
	fmt.Printf("Peak Ce              : %.4f ug/mL\n", m.MaxCe)
	fmt.Printf("Total infused        : %.3f mg\n", m.TotalInfused)
	fmt.Printf("Total bolus          : %.3f mg\n", m.TotalBolus)
	fmt.Printf("Eliminated           : %.3f mg\n", m.Eliminated)
	fmt.Printf("Mass-balance error   : %.3g mg\n", m.MassBalanceError)
}
