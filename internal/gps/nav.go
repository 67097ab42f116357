package gps

import (
	"math"
	"time"
)

// maxDeriveGap bounds the interval over which turn rate and climb are
// derived from consecutive fixes.
const maxDeriveGap = 5 * time.Second

// minTurnSpeedMps is the ground speed below which course changes are noise.
const minTurnSpeedMps = 2.0

// Snapshot is the latest receiver state, in SI units.
type Snapshot struct {
	Enabled  bool `json:"enabled"`
	Valid    bool `json:"valid"`
	FixStale bool `json:"fix_stale"`

	Source   string `json:"source,omitempty"`
	GPSDAddr string `json:"gpsd_addr,omitempty"`
	Device   string `json:"device,omitempty"`
	Baud     int    `json:"baud,omitempty"`

	LatDeg           float64  `json:"lat_deg,omitempty"`
	LonDeg           float64  `json:"lon_deg,omitempty"`
	AltM             *float64 `json:"alt_m,omitempty"`
	GroundSpeedMps   *float64 `json:"ground_speed_mps,omitempty"`
	TrackDeg         *float64 `json:"track_deg,omitempty"`
	TurnRateDps      *float64 `json:"turn_rate_dps,omitempty"`
	VerticalSpeedMps *float64 `json:"vertical_speed_mps,omitempty"`

	FixQuality *int     `json:"fix_quality,omitempty"`
	FixMode    *int     `json:"fix_mode,omitempty"`
	Satellites *int     `json:"satellites,omitempty"`
	HDOP       *float64 `json:"hdop,omitempty"`
	HorizAccM  *float64 `json:"horiz_acc_m,omitempty"`
	VertAccM   *float64 `json:"vert_acc_m,omitempty"`

	FixAgeSec  float64   `json:"fix_age_sec,omitempty"`
	LastFix    time.Time `json:"-"`
	LastFixUTC string    `json:"last_fix_utc,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// navState accumulates fields from partial reports. Both the NMEA and gpsd
// readers feed it.
type navState struct {
	latDeg, lonDeg float64
	latOK, lonOK   bool

	altM  float64
	altOK bool
	altAt time.Time

	gsMps float64
	gsOK  bool

	trackDeg float64
	trkOK    bool
	trkAt    time.Time

	turnDps float64
	turnOK  bool

	vsMps      float64
	vsOK       bool
	vsReported bool

	fixQuality   int
	fixQualityOK bool
	fixMode      int
	modeOK       bool
	sats         int
	satsOK       bool
	hdop         float64
	hdopOK       bool
	hAccM        float64
	hAccOK       bool
	vAccM        float64
	vAccOK       bool

	lastFix time.Time
	valid   bool
}

func (s *navState) setLat(v float64) {
	s.latDeg = v
	s.latOK = true
}

func (s *navState) setLon(v float64) {
	s.lonDeg = v
	s.lonOK = true
}

func (s *navState) hasPosition() bool {
	return s.latOK && s.lonOK
}

// setAlt records altitude and, unless the receiver reports climb itself,
// derives vertical speed from the previous altitude.
func (s *navState) setAlt(at time.Time, m float64) {
	if s.altOK && !s.vsReported {
		if dt := at.Sub(s.altAt); dt > 0 && dt <= maxDeriveGap {
			s.vsMps = (m - s.altM) / dt.Seconds()
			s.vsOK = true
		}
	}
	s.altM = m
	s.altOK = true
	s.altAt = at
}

func (s *navState) setClimb(mps float64) {
	s.vsMps = mps
	s.vsOK = true
	s.vsReported = true
}

func (s *navState) setGroundSpeed(mps float64) {
	s.gsMps = mps
	s.gsOK = true
}

// setTrack records course over ground and derives the turn rate from the
// previous course. Positive is a right turn.
func (s *navState) setTrack(at time.Time, deg float64) {
	deg = math.Mod(math.Mod(deg, 360)+360, 360)
	if s.trkOK {
		if dt := at.Sub(s.trkAt); dt > 0 && dt <= maxDeriveGap {
			rate := wrap180(deg-s.trackDeg) / dt.Seconds()
			if s.gsOK && s.gsMps < minTurnSpeedMps {
				rate = 0
			}
			s.turnDps = rate
			s.turnOK = true
		}
	}
	s.trackDeg = deg
	s.trkOK = true
	s.trkAt = at
}

func wrap180(d float64) float64 {
	d = math.Mod(d, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

func (s *navState) fill(out *Snapshot) {
	out.Valid = s.valid
	out.LatDeg = s.latDeg
	out.LonDeg = s.lonDeg
	if s.altOK {
		out.AltM = ptr(s.altM)
	}
	if s.gsOK {
		out.GroundSpeedMps = ptr(s.gsMps)
	}
	if s.trkOK {
		out.TrackDeg = ptr(s.trackDeg)
	}
	if s.turnOK {
		out.TurnRateDps = ptr(s.turnDps)
	}
	if s.vsOK {
		out.VerticalSpeedMps = ptr(s.vsMps)
	}
	if s.fixQualityOK {
		out.FixQuality = ptr(s.fixQuality)
	}
	if s.modeOK {
		out.FixMode = ptr(s.fixMode)
	}
	if s.satsOK {
		out.Satellites = ptr(s.sats)
	}
	if s.hdopOK {
		out.HDOP = ptr(s.hdop)
	}
	if s.hAccOK {
		out.HorizAccM = ptr(s.hAccM)
	}
	if s.vAccOK {
		out.VertAccM = ptr(s.vAccM)
	}
	if !s.lastFix.IsZero() {
		out.LastFix = s.lastFix
		out.LastFixUTC = s.lastFix.UTC().Format(time.RFC3339Nano)
	}
}

func ptr[T any](v T) *T { return &v }
