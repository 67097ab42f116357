package flarm

import "math"

const (
	// extrapolationSteps covers the four history buckets plus the leading
	// and trailing samples.
	extrapolationSteps = 18
	// ExtrapolationStepSec is the time, in seconds, between projected samples.
	ExtrapolationStepSec = 0.25
)

// ExtrapolateVelocity projects the velocity (m/s) forward assuming a constant
// turn of deltaRad per step, positive clockwise. Samples 1..16 are grouped
// into four one-second buckets; each bucket is returned in meters per four
// seconds, halved once per speed-scale step and saturated to int8.
func ExtrapolateVelocity(deltaRad, northMps, eastMps float64, speedScale uint8) (ns, ew [4]int8) {
	var north, east [extrapolationSteps]float64
	north[0], east[0] = northMps, eastMps

	sin, cos := math.Sincos(deltaRad)
	for i := 1; i < extrapolationSteps; i++ {
		n, e := north[i-1], east[i-1]
		north[i] = n*cos - e*sin
		east[i] = e*cos + n*sin
	}

	for b := 0; b < 4; b++ {
		var sumN, sumE float64
		for i := 1 + 4*b; i <= 4+4*b; i++ {
			sumN += north[i]
			sumE += east[i]
		}
		// The bucket mean in m/s times four is the bucket sum.
		for s := uint8(0); s < speedScale; s++ {
			sumN /= 2
			sumE /= 2
		}
		ns[b] = saturateInt8(sumN)
		ew[b] = saturateInt8(sumE)
	}
	return ns, ew
}

func saturateInt8(v float64) int8 {
	r := math.Round(v)
	if r > math.MaxInt8 {
		return math.MaxInt8
	}
	if r < math.MinInt8 {
		return math.MinInt8
	}
	return int8(r)
}
