package sim

import (
	"context"
	"math"
	"time"

	"flarm-ng/internal/dispatch"
	"flarm-ng/internal/flarm"
)

type TrafficSim struct {
	CenterLatDeg float64
	CenterLonDeg float64
	BaseAltM     float64
	// GroundSpeedMps, when set, overrides Period.
	GroundSpeedMps float64
	RadiusM        float64
	Period         time.Duration
	BaseAddress    uint32
}

var simTypes = []flarm.AircraftType{
	flarm.AircraftGlider,
	flarm.AircraftTowPlane,
	flarm.AircraftParaglider,
	flarm.AircraftHelicopter,
}

// Targets returns count aircraft orbiting clockwise around the center.
func (s TrafficSim) Targets(now time.Time, count int) []flarm.Ownship {
	if count <= 0 {
		return nil
	}

	r := s.RadiusM
	if r <= 0 {
		r = 3000
	}
	period := s.Period
	if s.GroundSpeedMps > 0 {
		period = time.Duration(2 * math.Pi * r / s.GroundSpeedMps * float64(time.Second))
	}
	if period <= 0 {
		period = 90 * time.Second
	}
	baseAlt := s.BaseAltM
	if baseAlt == 0 {
		baseAlt = 1200
	}
	base := s.BaseAddress
	if base == 0 {
		base = 0xDD0000
	}

	k := 2 * math.Pi / period.Seconds()
	phase := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())
	baseTheta := 2 * math.Pi * phase
	cosLat := math.Cos(s.CenterLatDeg * math.Pi / 180)

	out := make([]flarm.Ownship, 0, count)
	for i := 0; i < count; i++ {
		theta := baseTheta + 2*math.Pi*float64(i)/float64(count)
		vn := -r * math.Sin(theta) * k
		ve := r * math.Cos(theta) * k

		out = append(out, flarm.Ownship{
			LatDeg: s.CenterLatDeg + r*math.Cos(theta)/metersPerDegLat,
			LonDeg: s.CenterLonDeg + r*math.Sin(theta)/(metersPerDegLat*cosLat),
			// Stagger altitude a little between targets.
			AltM:           baseAlt + float64(i-count/2)*100,
			GroundSpeedMps: r * k,
			NorthMps:       vn,
			EastMps:        ve,
			TurnRateDps:    k * 180 / math.Pi,
			Airborne:       true,
			Address:        (base + uint32(i)) & 0xFFFFFF,
			AddressType:    flarm.AddressFLARM,
			AircraftType:   simTypes[i%len(simTypes)],
			HAccuracy:      2,
			VAccuracy:      1,
		})
	}
	return out
}

// TrafficLoop encodes simulated targets on a ticker and feeds them into the
// receive path as if they had been heard on FrequencyHz.
type TrafficLoop struct {
	Sim         TrafficSim
	Count       int
	Interval    time.Duration
	FrequencyHz uint32
	Encoder     flarm.Encoder
	Now         func() time.Time
}

// Tick encodes one round of targets at now.
func (l TrafficLoop) Tick(now time.Time, enqueue func(dispatch.RawFrame) bool) error {
	for i, tgt := range l.Sim.Targets(now, l.Count) {
		frame, err := l.Encoder.Encode(tgt, now)
		if err != nil {
			return err
		}
		enqueue(dispatch.RawFrame{
			Data:        frame,
			FrequencyHz: l.FrequencyHz,
			At:          now,
			RSSI:        -70 - float64(i),
		})
	}
	return nil
}

// Run ticks until ctx is done.
func (l TrafficLoop) Run(ctx context.Context, enqueue func(dispatch.RawFrame) bool) error {
	interval := l.Interval
	if interval <= 0 {
		interval = time.Second
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := l.Tick(now(), enqueue); err != nil {
				return err
			}
		}
	}
}
