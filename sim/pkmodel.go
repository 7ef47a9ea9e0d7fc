package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Fixed effects of the remimazolam population PK model (Masui 2022).
// Volumes in L, clearances in L/min, scaled allometrically against a
// reference adjusted body weight of 67.3 kg and a reference age of 54 y.
const (
	theta1  = 3.57   // V1
	theta2  = 11.3   // V2
	theta3  = 27.2   // V3
	theta4  = 1.03   // CL
	theta5  = 1.10   // Q2
	theta6  = 0.401  // Q3
	theta8  = 0.308  // age effect on V3
	theta9  = 0.146  // sex effect on CL
	theta10 = -0.184 // ASA-PS effect on CL

	referenceABW = 67.3 // kg
	referenceAge = 54.0 // years
)

// PKParameters is the complete parameter set of the 3-compartment +
// effect-site model. All fields are strictly positive. Immutable once
// derived; safe to share across concurrent runs.
type PKParameters struct {
	V1  float64 // central volume, L
	V2  float64 // shallow peripheral volume, L
	V3  float64 // deep peripheral volume, L
	CL  float64 // metabolic clearance, L/min
	Q2  float64 // central↔V2 intercompartmental clearance, L/min
	Q3  float64 // central↔V3 intercompartmental clearance, L/min
	Ke0 float64 // plasma→effect-site equilibration rate constant, min⁻¹
}

// DerivePKParameters applies the allometric covariate model. Volumes scale
// linearly with ABW/67.3, clearances with (ABW/67.3)^0.75. Returns an error
// wrapping ErrNonPhysiological if any resulting parameter is <= 0; Ke0 is
// left zero here and filled in by DeriveModel.
func DerivePKParameters(p PatientCovariates, w DerivedWeights) (PKParameters, error) {
	sizeV := w.ABW / referenceABW
	sizeCL := math.Pow(sizeV, 0.75)

	params := PKParameters{
		V1: theta1 * sizeV,
		V2: theta2 * sizeV,
		V3: (theta3 + theta8*(p.Age-referenceAge)) * sizeV,
		CL: (theta4 + theta9*float64(p.Sex) + theta10*float64(p.ASAPS)) * sizeCL,
		Q2: theta5 * sizeCL,
		Q3: theta6 * sizeCL,
	}

	for _, check := range []struct {
		name  string
		value float64
	}{
		{"V1", params.V1}, {"V2", params.V2}, {"V3", params.V3},
		{"CL", params.CL}, {"Q2", params.Q2}, {"Q3", params.Q3},
	} {
		if check.value <= 0 || math.IsNaN(check.value) {
			return PKParameters{}, fmt.Errorf("%w: %s = %g", ErrNonPhysiological, check.name, check.value)
		}
	}
	return params, nil
}

// DeriveModel is the full covariate→parameter pipeline: weights, allometric
// PK parameters, and ke0. A ke0 outside its sanity band is logged as a
// warning and still returned with the error so the caller can decide
// (RunConfig.Strict promotes it to a hard failure).
func DeriveModel(p PatientCovariates) (PKParameters, error) {
	weights, err := DeriveWeights(p)
	if err != nil {
		return PKParameters{}, err
	}
	params, err := DerivePKParameters(p, weights)
	if err != nil {
		return PKParameters{}, err
	}
	ke0, err := DeriveKe0(p)
	params.Ke0 = ke0
	if err != nil {
		logrus.Warnf("ke0 derivation: %v", err)
		return params, err
	}
	return params, nil
}
