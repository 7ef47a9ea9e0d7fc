// Package sim provides the core simulation engine for remimazolam
// target-controlled infusion (TCI).
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - patient.go / pkmodel.go / ke0.go: patient covariates → PK parameters
//   - system.go: the 3-compartment + effect-site ODE right-hand side
//   - simulator.go: the step loop, dosing segments, and trajectory recording
//
// # Architecture
//
// The sim package owns the run loop and the clinical model; numerically
// generic pieces live in sub-packages:
//   - sim/solver/: numerical integrators (Euler, RK4, Dormand–Prince 4(5),
//     a stiff-aware Rosenbrock method)
//   - sim/dosing/: declarative dosing protocols compiled into a
//     piecewise-constant infusion-rate schedule
//
// A run is strictly sequential (each step depends on the previous state).
// Independent runs share nothing mutable and are executed in parallel by
// RunAll (batch.go); PKParameters are immutable after derivation and safe
// to share across runs.
//
// # Key Types
//
//   - PatientCovariates → DerivedWeights → PKParameters: deterministic pure
//     functions of the inputs and fixed published model constants
//   - CompartmentSystem: cached rate constants and the pure Derivative
//   - TCIController: analytic state-space rate computation per control tick
//   - EventDetector (detector.go): threshold crossings on a finished
//     Trajectory with sub-sample interpolation
package sim
