package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flarm-ng/internal/dispatch"
	"flarm-ng/internal/flarm"
)

func TestTrafficSim_Targets_CountAndInvariants(t *testing.T) {
	s := TrafficSim{
		CenterLatDeg: 45.0,
		CenterLonDeg: -122.0,
		BaseAltM:     1500,
		RadiusM:      3000,
		Period:       90 * time.Second,
	}

	now := time.Date(2025, 12, 20, 19, 0, 0, 0, time.UTC)
	tgts := s.Targets(now, 5)
	require.Len(t, tgts, 5)

	seen := map[uint32]bool{}
	for i, tgt := range tgts {
		v := flarm.Relative(s.CenterLatDeg, s.CenterLonDeg, tgt.LatDeg, tgt.LonDeg)
		assert.InDelta(t, 3000, v.DistanceM, 30, "tgt[%d]", i)
		assert.InDelta(t, 2*math.Pi*3000/90, tgt.GroundSpeedMps, 1e-9)
		assert.Greater(t, tgt.TurnRateDps, 0.0, "orbit is clockwise")
		assert.Equal(t, flarm.AddressFLARM, tgt.AddressType)
		assert.False(t, seen[tgt.Address], "duplicate address %06x", tgt.Address)
		seen[tgt.Address] = true

		// Velocity is tangential to the orbit.
		dot := v.NorthM*tgt.NorthMps + v.EastM*tgt.EastMps
		assert.InDelta(t, 0, dot/(v.DistanceM*tgt.GroundSpeedMps), 0.02)
	}
}

func TestTrafficSim_GroundSpeedOverridesPeriod(t *testing.T) {
	s := TrafficSim{CenterLatDeg: 47, CenterLonDeg: 8, RadiusM: 2000, GroundSpeedMps: 30, Period: time.Hour}
	tgt := s.Targets(time.Unix(1700000000, 0), 1)[0]
	assert.InDelta(t, 30, tgt.GroundSpeedMps, 1e-9)
}

func TestTrafficSim_Targets_ZeroCountNil(t *testing.T) {
	s := TrafficSim{}
	assert.Nil(t, s.Targets(time.Now(), 0))
	assert.Nil(t, s.Targets(time.Now(), -1))
}

func TestTrafficLoop_TickProducesDecodableFrames(t *testing.T) {
	now := time.Unix(1700000000, 0)
	loop := TrafficLoop{
		Sim:         TrafficSim{CenterLatDeg: 47, CenterLonDeg: 8, RadiusM: 2000},
		Count:       3,
		FrequencyHz: 868200000,
		Encoder:     flarm.Encoder{Turn: flarm.DefaultTurnConfig()},
	}

	var got []dispatch.RawFrame
	require.NoError(t, loop.Tick(now, func(f dispatch.RawFrame) bool {
		got = append(got, f)
		return true
	}))
	require.Len(t, got, 3)

	own := flarm.Ownship{LatDeg: 47, LonDeg: 8}
	for i, f := range got {
		assert.Equal(t, uint32(868200000), f.FrequencyHz)
		pos, _, err := flarm.Decoder{IgnoreDistanceM: 30000}.Decode(f.Data, own, flarm.Reception{At: f.At})
		require.NoError(t, err, "frame %d", i)
		assert.InDelta(t, 2000, pos.DistanceM, 30)
		assert.Equal(t, uint32(0xDD0000+i), pos.Address)
	}
}

func TestTrafficLoop_RunStopsOnCancel(t *testing.T) {
	loop := TrafficLoop{
		Sim:      TrafficSim{CenterLatDeg: 47, CenterLonDeg: 8},
		Count:    1,
		Interval: 5 * time.Millisecond,
		Encoder:  flarm.Encoder{Turn: flarm.DefaultTurnConfig()},
	}
	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx, func(dispatch.RawFrame) bool {
			select {
			case ticks <- struct{}{}:
			default:
			}
			return true
		})
	}()

	select {
	case <-ticks:
	case <-time.After(time.Second):
		t.Fatal("no frame produced")
	}
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
