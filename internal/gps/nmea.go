package gps

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	errNMEAFormat   = errors.New("nmea: malformed sentence")
	errNMEAChecksum = errors.New("nmea: checksum mismatch")
)

const mpsPerKnot = 0.514444

type nmeaSentence struct {
	// Type is the talker-independent sentence type, e.g. "RMC" for $GNRMC.
	Type   string
	Fields nmeaFields
}

// nmeaFields is the comma-split payload; index 0 is the address field.
type nmeaFields []string

func (f nmeaFields) get(i int) string {
	if i >= len(f) {
		return ""
	}
	return strings.TrimSpace(f[i])
}

func (f nmeaFields) float(i int) (float64, bool) {
	v, err := strconv.ParseFloat(f.get(i), 64)
	return v, err == nil
}

func (f nmeaFields) int(i int) (int, bool) {
	v, err := strconv.Atoi(f.get(i))
	return v, err == nil
}

// latLon reads the value at i and its hemisphere at i+1.
func (f nmeaFields) latLon(i int) (float64, bool) {
	return parseNMEALatLon(f.get(i), f.get(i+1))
}

func parseNMEASentence(line string) (nmeaSentence, error) {
	line = strings.TrimSpace(line)
	star := strings.LastIndexByte(line, '*')
	if !strings.HasPrefix(line, "$") || star < 0 || len(line) < star+3 {
		return nmeaSentence{}, errNMEAFormat
	}
	payload := line[1:star]
	want, err := strconv.ParseUint(line[star+1:star+3], 16, 8)
	if err != nil {
		return nmeaSentence{}, errNMEAFormat
	}
	var sum byte
	for i := range len(payload) {
		sum ^= payload[i]
	}
	if sum != byte(want) {
		return nmeaSentence{}, errNMEAChecksum
	}

	fields := nmeaFields(strings.Split(payload, ","))
	addr := fields[0]
	if len(addr) < 3 {
		return nmeaSentence{}, errNMEAFormat
	}
	return nmeaSentence{Type: strings.ToUpper(addr[len(addr)-3:]), Fields: fields}, nil
}

// parseNMEALatLon converts [d]ddmm.mmmm plus an N/S/E/W hemisphere into
// signed decimal degrees.
func parseNMEALatLon(v, hemi string) (float64, bool) {
	sign := 1.0
	switch strings.ToUpper(hemi) {
	case "N", "E":
	case "S", "W":
		sign = -1
	default:
		return 0, false
	}
	intLen := strings.IndexByte(v, '.')
	if intLen < 0 {
		intLen = len(v)
	}
	if intLen < 3 {
		return 0, false
	}
	deg, err := strconv.Atoi(v[:intLen-2])
	if err != nil {
		return 0, false
	}
	mins, err := strconv.ParseFloat(v[intLen-2:], 64)
	if err != nil || mins >= 60 {
		return 0, false
	}
	return sign * (float64(deg) + mins/60), true
}

type nmeaState struct {
	nav    navState
	device string
	baud   int
}

// apply folds one sentence into the state and reports whether the position
// fix changed.
func (s *nmeaState) apply(now time.Time, sent nmeaSentence) bool {
	var updated bool
	switch sent.Type {
	case "RMC":
		updated = s.applyRMC(now, sent.Fields)
	case "GGA":
		updated = s.applyGGA(now, sent.Fields)
	}
	if !updated || !s.nav.hasPosition() {
		return false
	}
	s.nav.lastFix = now
	s.nav.valid = true
	return true
}

func (s *nmeaState) snapshot() Snapshot {
	out := Snapshot{Enabled: true, Source: "nmea", Device: s.device, Baud: s.baud}
	s.nav.fill(&out)
	return out
}

// applyRMC reads $xxRMC,time,status,lat,N,lon,E,sog_kt,cog,date,...
func (s *nmeaState) applyRMC(now time.Time, f nmeaFields) bool {
	if len(f) < 10 || f.get(2) != "A" {
		return false
	}
	s.setPosition(f, 3)
	if kt, ok := f.float(7); ok {
		s.nav.setGroundSpeed(kt * mpsPerKnot)
	}
	if cog, ok := f.float(8); ok {
		s.nav.setTrack(now, cog)
	}
	return true
}

// applyGGA reads $xxGGA,time,lat,N,lon,E,quality,sats,hdop,alt,M,sep,M,...
// Altitude is reported above the ellipsoid (MSL plus geoid separation).
func (s *nmeaState) applyGGA(now time.Time, f nmeaFields) bool {
	if len(f) < 11 {
		return false
	}
	q, ok := f.int(6)
	if !ok || q == 0 {
		return false
	}
	s.nav.fixQuality, s.nav.fixQualityOK = q, true
	if n, ok := f.int(7); ok {
		s.nav.sats, s.nav.satsOK = n, true
	}
	if h, ok := f.float(8); ok {
		s.nav.hdop, s.nav.hdopOK = h, true
	}

	updated := s.setPosition(f, 2)
	if msl, ok := f.float(9); ok {
		sep, _ := f.float(11)
		s.nav.setAlt(now, msl+sep)
		updated = true
	}
	return updated
}

// setPosition reads lat/hemi/lon/hemi starting at field i.
func (s *nmeaState) setPosition(f nmeaFields, i int) bool {
	lat, latOK := f.latLon(i)
	if latOK {
		s.nav.setLat(lat)
	}
	lon, lonOK := f.latLon(i + 2)
	if lonOK {
		s.nav.setLon(lon)
	}
	return latOK || lonOK
}
