package sim

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"flarm-ng/internal/flarm"
)

func TestOwnshipSim_State_Invariants(t *testing.T) {
	s := OwnshipSim{
		CenterLatDeg: 45.0,
		CenterLonDeg: -122.0,
		RadiusM:      1000,
		Period:       60 * time.Second,
		Identity:     Identity{Address: 0xDDA5BA, AddressType: flarm.AddressFLARM, AircraftType: flarm.AircraftGlider},
	}

	rapid.Check(t, func(rt *rapid.T) {
		now := time.Unix(0, rapid.Int64Range(0, 4e18).Draw(rt, "ns"))
		o := s.State(now)

		for _, v := range []float64{o.LatDeg, o.LonDeg, o.AltM, o.NorthMps, o.EastMps, o.TurnRateDps, o.VerticalSpeedMps} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				rt.Fatalf("non-finite field in %+v", o)
			}
		}
		if d := flarm.Relative(s.CenterLatDeg, s.CenterLonDeg, o.LatDeg, o.LonDeg).DistanceM; d > s.RadiusM*1.01 {
			rt.Fatalf("%.1f m from center, radius %.1f", d, s.RadiusM)
		}
		if math.Abs(o.GroundSpeedMps-math.Hypot(o.NorthMps, o.EastMps)) > 1e-9 {
			rt.Fatalf("ground speed %v does not match velocity", o.GroundSpeedMps)
		}
		if math.Abs(o.AltM-1000) > 50+1e-9 {
			rt.Fatalf("alt %v outside band", o.AltM)
		}
	})
}

func TestOwnshipSim_State_Deterministic(t *testing.T) {
	s := OwnshipSim{CenterLatDeg: 1, CenterLonDeg: 2, RadiusM: 900, Period: 120 * time.Second}
	now := time.Date(2025, 12, 20, 19, 0, 0, 123, time.UTC)
	assert.Equal(t, s.State(now), s.State(now))
}

func TestOwnshipSim_State_CarriesIdentity(t *testing.T) {
	id := Identity{Address: 0x3E12AB, AddressType: flarm.AddressICAO, AircraftType: flarm.AircraftTowPlane, Stealth: true, NoTrack: true}
	o := OwnshipSim{CenterLatDeg: 47, CenterLonDeg: 8, Identity: id}.State(time.Unix(1700000000, 0))
	assert.Equal(t, uint32(0x3E12AB), o.Address)
	assert.Equal(t, flarm.AddressICAO, o.AddressType)
	assert.Equal(t, flarm.AircraftTowPlane, o.AircraftType)
	assert.True(t, o.Stealth)
	assert.True(t, o.NoTrack)
	assert.True(t, o.Airborne)
}

func TestOwnshipSim_TurnRateMatchesTrackChange(t *testing.T) {
	s := OwnshipSim{CenterLatDeg: 47, CenterLonDeg: 8, RadiusM: 800, Period: 120 * time.Second}
	at := time.Unix(1700000000, 0).Add(7 * time.Second)
	const dt = 10 * time.Millisecond

	track := func(o flarm.Ownship) float64 { return math.Atan2(o.EastMps, o.NorthMps) * 180 / math.Pi }
	a, b := s.State(at), s.State(at.Add(dt))
	delta := track(b) - track(a)
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}
	assert.InDelta(t, a.TurnRateDps, delta/dt.Seconds(), 0.5)
}

func TestOwnshipSim_WithGroundSpeed(t *testing.T) {
	s := OwnshipSim{RadiusM: 1000}.WithGroundSpeed(25)
	// One lap crosses the full east span twice but is shorter than a circle
	// of the same radius.
	lap := figureEightLength(1000)
	assert.Greater(t, lap, 4*1000.0)
	assert.Less(t, lap, 2*math.Pi*1000)
	assert.InDelta(t, lap/25, s.Period.Seconds(), 1e-6)

	unchanged := OwnshipSim{Period: time.Minute}.WithGroundSpeed(0)
	assert.Equal(t, time.Minute, unchanged.Period)
}

func TestSources(t *testing.T) {
	now := time.Unix(1700000000, 0)
	sim := OwnshipSim{CenterLatDeg: 47, CenterLonDeg: 8}
	o, ok := SimSource{Sim: sim, Now: func() time.Time { return now }}.Ownship()
	assert.True(t, ok)
	assert.Equal(t, sim.State(now), o)

	fixed := NewFixedSource(flarm.Ownship{LatDeg: 46, LonDeg: 7})
	got, ok := fixed.Ownship()
	assert.True(t, ok)
	assert.Equal(t, 46.0, got.LatDeg)

	fixed.Set(flarm.Ownship{LatDeg: 45})
	got, _ = fixed.Ownship()
	assert.Equal(t, 45.0, got.LatDeg)

	var empty FixedSource
	_, ok = empty.Ownship()
	assert.False(t, ok)
}
