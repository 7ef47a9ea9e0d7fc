package sim

import "fmt"

// ke0 covariate regression (Masui & Hagihira). The coefficients below are
// tabulated literature constants and must not be adjusted: five base
// polynomials F(x), one per covariate, each centered near a reference
// value; five centering offsets forming F2(x) = F(x) − offset; and fifteen
// interaction coefficients (all ten pairwise products of the F2 terms plus
// five triple products).

// Base covariate functions.
func ke0FAge(age float64) float64 {
	d := age - 55.0
	return 0.228 - 2.72e-5*age + 2.96e-7*d*d - 4.34e-9*d*d*d
}

func ke0FTBW(tbw float64) float64 {
	d := tbw - 90.0
	return 0.196 + 3.53e-4*tbw - 7.91e-7*d*d
}

func ke0FHeight(height float64) float64 {
	d := height - 167.5
	return 0.148 + 4.73e-4*height - 1.43e-6*d*d
}

func ke0FSex(sex float64) float64 {
	return 0.237 - 2.16e-2*sex
}

func ke0FASAPS(asaps float64) float64 {
	return 0.214 + 2.41e-2*asaps
}

// Centering offsets for the interaction terms.
const (
	ke0OffsetAge    = 0.227
	ke0OffsetTBW    = 0.227
	ke0OffsetHeight = 0.226
	ke0OffsetSex    = 0.226
	ke0OffsetASAPS  = 0.226
)

// Regression intercept and sex-term weight.
const (
	ke0Intercept = -0.906
	ke0SexWeight = 0.999
)

// Pairwise and triple interaction coefficients.
const (
	ke0AgeTBW         = -4.50
	ke0AgeHeight      = -4.51
	ke0AgeSex         = 2.46
	ke0AgeASAPS       = 3.35
	ke0TBWHeight      = -12.6
	ke0TBWSex         = 0.394
	ke0TBWASAPS       = 2.06
	ke0HeightSex      = 0.390
	ke0HeightASAPS    = 2.07
	ke0SexASAPS       = 5.03
	ke0AgeTBWHeight   = 99.8
	ke0TBWHeightSex   = 5.11
	ke0TBWHeightASAPS = -39.4
	ke0TBWSexASAPS    = -5.00
	ke0HeightSexASAPS = -5.04
)

// Ke0SanityBandMax is the upper bound of the plausible ke0 range in min⁻¹.
// Values at or outside (0, Ke0SanityBandMax) raise ErrKe0OutOfRange.
const Ke0SanityBandMax = 1.0

// DeriveKe0 evaluates the ke0 regression for the given covariates.
// Deterministic: identical inputs always produce bit-identical output.
// An out-of-band result is returned together with ErrKe0OutOfRange so the
// caller can decide whether to treat it as fatal.
func DeriveKe0(p PatientCovariates) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	fAge := ke0FAge(p.Age)
	fTBW := ke0FTBW(p.WeightKg)
	fHeight := ke0FHeight(p.HeightCm)
	fSex := ke0FSex(float64(p.Sex))
	fASAPS := ke0FASAPS(float64(p.ASAPS))

	f2Age := fAge - ke0OffsetAge
	f2TBW := fTBW - ke0OffsetTBW
	f2Height := fHeight - ke0OffsetHeight
	f2Sex := fSex - ke0OffsetSex
	f2ASAPS := fASAPS - ke0OffsetASAPS

	ke0 := ke0Intercept +
		fAge + fTBW + fHeight + ke0SexWeight*fSex + fASAPS +
		ke0AgeTBW*f2Age*f2TBW +
		ke0AgeHeight*f2Age*f2Height +
		ke0AgeSex*f2Age*f2Sex +
		ke0AgeASAPS*f2Age*f2ASAPS +
		ke0TBWHeight*f2TBW*f2Height +
		ke0TBWSex*f2TBW*f2Sex +
		ke0TBWASAPS*f2TBW*f2ASAPS +
		ke0HeightSex*f2Height*f2Sex +
		ke0HeightASAPS*f2Height*f2ASAPS +
		ke0SexASAPS*f2Sex*f2ASAPS +
		ke0AgeTBWHeight*f2Age*f2TBW*f2Height +
		ke0TBWHeightSex*f2TBW*f2Height*f2Sex +
		ke0TBWHeightASAPS*f2TBW*f2Height*f2ASAPS +
		ke0TBWSexASAPS*f2TBW*f2Sex*f2ASAPS +
		ke0HeightSexASAPS*f2Height*f2Sex*f2ASAPS

	if ke0 <= 0 || ke0 >= Ke0SanityBandMax {
		return ke0, fmt.Errorf("%w: %g min⁻¹ outside (0, %g)", ErrKe0OutOfRange, ke0, Ke0SanityBandMax)
	}
	return ke0, nil
}
