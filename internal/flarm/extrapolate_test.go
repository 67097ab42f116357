package flarm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestExtrapolateVelocity_NoTurnKeepsVelocity(t *testing.T) {
	ns, ew := ExtrapolateVelocity(0, 10, -5, 0)
	assert.Equal(t, [4]int8{40, 40, 40, 40}, ns)
	assert.Equal(t, [4]int8{-20, -20, -20, -20}, ew)
}

func TestExtrapolateVelocity_NoTurnAllScales(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ss := rapid.Uint8Range(0, 3).Draw(t, "ss")
		n := rapid.IntRange(-30, 30).Draw(t, "n")
		e := rapid.IntRange(-30, 30).Draw(t, "e")

		ns, ew := ExtrapolateVelocity(0, float64(n), float64(e), ss)
		wantN := saturateInt8(float64(4*n) / float64(int(1)<<ss))
		wantE := saturateInt8(float64(4*e) / float64(int(1)<<ss))
		for i := 0; i < 4; i++ {
			if ns[i] != wantN || ew[i] != wantE {
				t.Fatalf("bucket %d: got (%d,%d) want (%d,%d)", i, ns[i], ew[i], wantN, wantE)
			}
		}
	})
}

func TestExtrapolateVelocity_SpeedScaleHalves(t *testing.T) {
	ns, _ := ExtrapolateVelocity(0, 20, 0, 2)
	assert.Equal(t, [4]int8{20, 20, 20, 20}, ns)
}

func TestExtrapolateVelocity_Saturates(t *testing.T) {
	ns, ew := ExtrapolateVelocity(0, 100, -100, 0)
	assert.Equal(t, int8(127), ns[0])
	assert.Equal(t, int8(-128), ew[0])
}

func TestExtrapolateVelocity_RightTurnSwingsEast(t *testing.T) {
	delta := 20 * math.Pi / 180 * ExtrapolationStepSec
	ns, ew := ExtrapolateVelocity(delta, 10, 0, 0)
	for i := 1; i < 4; i++ {
		assert.Greater(t, ew[i], ew[i-1], "east component should grow")
		assert.Less(t, ns[i], ns[i-1], "north component should shrink")
	}
	assert.Greater(t, ew[0], int8(0))

	_, ewLeft := ExtrapolateVelocity(-delta, 10, 0, 0)
	for i := 0; i < 4; i++ {
		assert.Equal(t, -ew[i], ewLeft[i])
	}
}

func TestExtrapolateVelocity_PreservesSpeed(t *testing.T) {
	// Zero velocity stays zero whatever the turn.
	delta := 2 * math.Pi / 16
	ns, ew := ExtrapolateVelocity(delta, 0, 0, 0)
	assert.Equal(t, [4]int8{}, ns)
	assert.Equal(t, [4]int8{}, ew)

	ns, ew = ExtrapolateVelocity(0.01, 7, 7, 0)
	for i := 0; i < 4; i++ {
		speed := math.Hypot(float64(ns[i]), float64(ew[i])) / 4
		assert.InDelta(t, math.Hypot(7, 7), speed, 0.3)
	}
}
