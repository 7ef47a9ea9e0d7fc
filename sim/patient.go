package sim

import "fmt"

// Sex indicator values follow the model convention: 0 = male, 1 = female.
const (
	SexMale   = 0
	SexFemale = 1
)

// PatientCovariates is the immutable patient description a simulation is
// derived from. Created once per run request and never mutated.
type PatientCovariates struct {
	Age      float64 // years, > 0
	WeightKg float64 // total body weight (TBW), kg, > 0
	HeightCm float64 // cm, > 0
	Sex      int     // SexMale or SexFemale
	ASAPS    int     // ASA physical-status class, 0 = healthiest
}

// Validate checks the covariates before any derivation happens.
// Returns an error wrapping ErrInvalidCovariate on the first violation.
func (p PatientCovariates) Validate() error {
	if p.Age <= 0 {
		return fmt.Errorf("%w: age must be > 0, got %g", ErrInvalidCovariate, p.Age)
	}
	if p.WeightKg <= 0 {
		return fmt.Errorf("%w: weight must be > 0 kg, got %g", ErrInvalidCovariate, p.WeightKg)
	}
	if p.HeightCm <= 0 {
		return fmt.Errorf("%w: height must be > 0 cm, got %g", ErrInvalidCovariate, p.HeightCm)
	}
	if p.Sex != SexMale && p.Sex != SexFemale {
		return fmt.Errorf("%w: sex must be %d (male) or %d (female), got %d",
			ErrInvalidCovariate, SexMale, SexFemale, p.Sex)
	}
	if p.ASAPS < 0 {
		return fmt.Errorf("%w: ASA-PS class must be >= 0, got %d", ErrInvalidCovariate, p.ASAPS)
	}
	return nil
}

// DerivedWeights holds the body-weight surrogates used by the PK model in
// place of raw total body weight.
type DerivedWeights struct {
	IBW float64 // ideal body weight, kg
	ABW float64 // adjusted body weight, kg
}

// DeriveWeights computes IBW and ABW from the covariates:
//
//	IBW = 45.4 + 0.89·(height − 152.4) + 4.5·(1 − sex)
//	ABW = IBW + 0.4·(TBW − IBW)
func DeriveWeights(p PatientCovariates) (DerivedWeights, error) {
	if err := p.Validate(); err != nil {
		return DerivedWeights{}, err
	}
	ibw := 45.4 + 0.89*(p.HeightCm-152.4) + 4.5*(1-float64(p.Sex))
	abw := ibw + 0.4*(p.WeightKg-ibw)
	return DerivedWeights{IBW: ibw, ABW: abw}, nil
}
