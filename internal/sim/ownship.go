package sim

import (
	"math"
	"sync"
	"time"

	"flarm-ng/internal/flarm"
)

const metersPerDegLat = 111320.0

// Identity is the static part of a simulated aircraft.
type Identity struct {
	Address      uint32
	AddressType  flarm.AddressType
	AircraftType flarm.AircraftType
	Stealth      bool
	NoTrack      bool
}

type OwnshipSim struct {
	CenterLatDeg float64
	CenterLonDeg float64
	AltM         float64
	RadiusM      float64
	Period       time.Duration
	Identity     Identity
}

func (s OwnshipSim) period() time.Duration {
	if s.Period <= 0 {
		return 120 * time.Second
	}
	return s.Period
}

func (s OwnshipSim) radius() float64 {
	if s.RadiusM <= 0 {
		return 800
	}
	return s.RadiusM
}

// WithGroundSpeed sets Period so the figure-eight is flown at roughly
// groundSpeedMps on average.
func (s OwnshipSim) WithGroundSpeed(groundSpeedMps float64) OwnshipSim {
	if groundSpeedMps <= 0 {
		return s
	}
	s.Period = time.Duration(figureEightLength(s.radius()) / groundSpeedMps * float64(time.Second))
	return s
}

// figureEightLength integrates the path length of one lap.
func figureEightLength(r float64) float64 {
	const steps = 720
	var length float64
	px, py := r, 0.0
	for i := 1; i <= steps; i++ {
		w := 2 * math.Pi * float64(i) / steps
		x, y := r*math.Cos(w), 0.5*r*math.Sin(2*w)
		length += math.Hypot(x-px, y-py)
		px, py = x, y
	}
	return length
}

// State returns a deterministic airborne own-ship state for now.
//
// The horizontal track is a figure-eight (Lissajous) around the center:
//
//	east  = R*cos(w)
//	north = 0.5*R*sin(2w)
//
// Velocity, acceleration and hence turn rate are the analytic derivatives.
// Altitude is a sinusoid around AltM with its derivative as vertical speed.
func (s OwnshipSim) State(now time.Time) flarm.Ownship {
	period := s.period()
	r := s.radius()

	phase := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())
	w := 2 * math.Pi * phase
	k := 2 * math.Pi / period.Seconds()

	eastM := r * math.Cos(w)
	northM := 0.5 * r * math.Sin(2*w)
	ve := -r * math.Sin(w) * k
	vn := r * math.Cos(2*w) * k
	ae := -r * math.Cos(w) * k * k
	an := -2 * r * math.Sin(2*w) * k * k

	gs := math.Hypot(vn, ve)
	var turnDps float64
	if gs > 0 {
		turnDps = (vn*ae - ve*an) / (gs * gs) * 180 / math.Pi
	}

	// Vertical period is decoupled from horizontal to avoid repetitive sync.
	vp := period / 2
	if vp < 30*time.Second {
		vp = 30 * time.Second
	}
	const amp = 50.0 // m
	vphase := float64(now.UnixNano()%vp.Nanoseconds()) / float64(vp.Nanoseconds())
	wv := 2 * math.Pi * vphase
	baseAlt := s.AltM
	if baseAlt == 0 {
		baseAlt = 1000
	}

	return flarm.Ownship{
		LatDeg:           s.CenterLatDeg + northM/metersPerDegLat,
		LonDeg:           s.CenterLonDeg + eastM/(metersPerDegLat*math.Cos(s.CenterLatDeg*math.Pi/180)),
		AltM:             baseAlt + amp*math.Sin(wv),
		GroundSpeedMps:   gs,
		VerticalSpeedMps: amp * (2 * math.Pi / vp.Seconds()) * math.Cos(wv),
		NorthMps:         vn,
		EastMps:          ve,
		TurnRateDps:      turnDps,
		Airborne:         true,
		Address:          s.Identity.Address,
		AddressType:      s.Identity.AddressType,
		AircraftType:     s.Identity.AircraftType,
		Stealth:          s.Identity.Stealth,
		NoTrack:          s.Identity.NoTrack,
		HAccuracy:        2,
		VAccuracy:        1,
	}
}

// SimSource serves OwnshipSim states as the live own-ship.
type SimSource struct {
	Sim OwnshipSim
	Now func() time.Time
}

func (s SimSource) Ownship() (flarm.Ownship, bool) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return s.Sim.State(now()), true
}

// FixedSource reports a stationary own-ship, as for a ground station. It is
// valid once a position has been set.
type FixedSource struct {
	mu  sync.RWMutex
	own flarm.Ownship
	ok  bool
}

func NewFixedSource(o flarm.Ownship) *FixedSource {
	return &FixedSource{own: o, ok: true}
}

func (f *FixedSource) Set(o flarm.Ownship) {
	f.mu.Lock()
	f.own, f.ok = o, true
	f.mu.Unlock()
}

func (f *FixedSource) Ownship() (flarm.Ownship, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.own, f.ok
}
