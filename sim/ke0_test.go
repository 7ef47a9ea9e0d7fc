package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKe0_ReferencePatient(t *testing.T) {
	ke0, err := DeriveKe0(referencePatient())
	require.NoError(t, err)

	// published reference value, 1% relative tolerance
	assert.InEpsilon(t, 0.2202, ke0, 0.01)
}

func TestDeriveKe0_Deterministic(t *testing.T) {
	// GIVEN arbitrary valid covariates
	p := PatientCovariates{Age: 31, WeightKg: 84.5, HeightCm: 163, Sex: SexFemale, ASAPS: 2}

	// WHEN derived repeatedly
	a, errA := DeriveKe0(p)
	b, errB := DeriveKe0(p)

	// THEN the result is bit-identical — no randomness, no hidden state
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
}

func TestDeriveKe0_CovariateEffects(t *testing.T) {
	base := referencePatient()

	ke0Base, err := DeriveKe0(base)
	require.NoError(t, err)

	female := base
	female.Sex = SexFemale
	ke0Female, err := DeriveKe0(female)
	require.NoError(t, err)

	// the sex polynomial lowers ke0 for females
	assert.Less(t, ke0Female, ke0Base)

	sicker := base
	sicker.ASAPS = 2
	ke0Sick, err := DeriveKe0(sicker)
	require.NoError(t, err)
	assert.NotEqual(t, ke0Base, ke0Sick)
}

func TestDeriveKe0_InSanityBandForPlausibleAdults(t *testing.T) {
	for _, p := range []PatientCovariates{
		{Age: 20, WeightKg: 45, HeightCm: 150, Sex: SexFemale, ASAPS: 0},
		{Age: 90, WeightKg: 120, HeightCm: 195, Sex: SexMale, ASAPS: 3},
		{Age: 40, WeightKg: 60, HeightCm: 165, Sex: SexFemale, ASAPS: 1},
	} {
		ke0, err := DeriveKe0(p)
		require.NoError(t, err)
		assert.Greater(t, ke0, 0.0)
		assert.Less(t, ke0, Ke0SanityBandMax)
	}
}

func TestDeriveKe0_OutOfBandStillReturned(t *testing.T) {
	// absurd but positive covariates push the cubic age term far negative
	p := PatientCovariates{Age: 2000, WeightKg: 70, HeightCm: 170, Sex: SexMale, ASAPS: 0}

	ke0, err := DeriveKe0(p)

	// the value comes back with the error so the caller can decide
	assert.ErrorIs(t, err, ErrKe0OutOfRange)
	assert.NotZero(t, ke0)
}

func TestDeriveKe0_RejectsInvalidCovariates(t *testing.T) {
	p := referencePatient()
	p.Age = -5
	_, err := DeriveKe0(p)
	assert.ErrorIs(t, err, ErrInvalidCovariate)
}
