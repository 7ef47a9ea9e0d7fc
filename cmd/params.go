package cmd

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/ysuzuki1978/remimazolam-tci-simulator-sub002/sim"
)

// paramsCmd derives and prints the PK parameter set and ke0 for a patient,
// for downstream comparison and audit. The derivation is a deterministic
// pure function of the covariates and the fixed model constants.
var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Derive and print the PK parameters and ke0 for a patient",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		patient := patientFromFlags()
		weights, err := sim.DeriveWeights(patient)
		if err != nil {
			logrus.Fatalf("deriving weights: %v", err)
		}
		params, err := sim.DeriveModel(patient)
		if err != nil && !errors.Is(err, sim.ErrKe0OutOfRange) {
			logrus.Fatalf("deriving parameters: %v", err)
		}

		fmt.Println("=== Derived Weights ===")
		fmt.Printf("IBW : %7.2f kg\n", weights.IBW)
		fmt.Printf("ABW : %7.2f kg\n", weights.ABW)
		printParams(params)
		if err != nil {
			logrus.Warnf("%v", err)
		}
	},
}
