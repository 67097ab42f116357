package gps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"strings"
	"time"
)

const (
	gpsdDefaultAddr = "127.0.0.1:2947"
	gpsdDialTimeout = 2 * time.Second

	// scaled=true reports m/s, meters and degrees.
	gpsdWatchCmd = `?WATCH={"enable":true,"json":true,"scaled":true}` + "\n"
)

func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: gpsdDialTimeout}
	return d.DialContext(ctx, "tcp", addr)
}

func gpsdWatch(conn net.Conn) error {
	_, err := io.WriteString(conn, gpsdWatchCmd)
	return err
}

// gpsdReport carries the members of the TPV and SKY classes we read. Other
// classes decode into it harmlessly and are ignored.
type gpsdReport struct {
	Class string `json:"class"`

	// TPV
	Mode   *int     `json:"mode"`
	Time   string   `json:"time"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	Alt    *float64 `json:"alt"`
	AltHAE *float64 `json:"altHAE"`
	AltMSL *float64 `json:"altMSL"`
	Speed  *float64 `json:"speed"`
	Track  *float64 `json:"track"`
	Climb  *float64 `json:"climb"`
	Eph    *float64 `json:"eph"`
	Epx    *float64 `json:"epx"`
	Epy    *float64 `json:"epy"`
	Epv    *float64 `json:"epv"`

	// SKY
	HDOP       *float64 `json:"hdop"`
	USat       *int     `json:"uSat"`
	Satellites []struct {
		Used bool `json:"used"`
	} `json:"satellites"`
}

type gpsdState struct {
	nav  navState
	addr string
}

func newGPSDState(addr string) *gpsdState {
	return &gpsdState{addr: strings.TrimSpace(addr)}
}

func (s *gpsdState) snapshot() Snapshot {
	out := Snapshot{Enabled: true, Source: "gpsd", Device: "gpsd", GPSDAddr: s.addr}
	s.nav.fill(&out)
	return out
}

// applyLine folds one gpsd JSON report into the state.
func (s *gpsdState) applyLine(now time.Time, line string) (bool, error) {
	var r gpsdReport
	if err := json.Unmarshal([]byte(line), &r); err != nil {
		return false, fmt.Errorf("gpsd: decode report: %w", err)
	}
	switch r.Class {
	case "TPV":
		return s.applyTPV(now, &r), nil
	case "SKY":
		return s.applySKY(&r), nil
	}
	return false, nil
}

func (s *gpsdState) applyTPV(now time.Time, r *gpsdReport) bool {
	at := now
	if t, err := time.Parse(time.RFC3339Nano, r.Time); err == nil {
		at = t.UTC()
	}
	n := &s.nav
	var updated bool
	if r.Mode != nil {
		n.fixMode, n.modeOK = *r.Mode, true
		updated = true
	}
	switch {
	case r.Eph != nil:
		n.hAccM, n.hAccOK = *r.Eph, true
	case r.Epx != nil && r.Epy != nil:
		n.hAccM, n.hAccOK = math.Hypot(*r.Epx, *r.Epy), true
	}
	if r.Epv != nil {
		n.vAccM, n.vAccOK = *r.Epv, true
	}
	if r.Lat != nil {
		n.setLat(*r.Lat)
	}
	if r.Lon != nil {
		n.setLon(*r.Lon)
	}
	if r.Speed != nil {
		n.setGroundSpeed(*r.Speed)
	}
	if r.Climb != nil {
		n.setClimb(*r.Climb)
	}
	if r.Track != nil {
		n.setTrack(at, *r.Track)
	}
	// Geometric altitude: HAE first, then the legacy alt, then MSL.
	for _, alt := range []*float64{r.AltHAE, r.Alt, r.AltMSL} {
		if alt != nil {
			n.setAlt(at, *alt)
			break
		}
	}
	updated = updated || r.Lat != nil || r.Lon != nil || r.Speed != nil || r.Track != nil

	// Mode 2 is a 2D fix, 3 is 3D; anything lower drops the fix.
	n.valid = n.modeOK && n.fixMode >= 2 && n.hasPosition()
	if n.valid {
		n.lastFix = at
	}
	return updated
}

func (s *gpsdState) applySKY(r *gpsdReport) bool {
	n := &s.nav
	if r.HDOP != nil {
		n.hdop, n.hdopOK = *r.HDOP, true
	}
	switch {
	case r.USat != nil:
		n.sats, n.satsOK = *r.USat, true
	case len(r.Satellites) > 0:
		used := 0
		for _, sat := range r.Satellites {
			if sat.Used {
				used++
			}
		}
		n.sats, n.satsOK = used, true
	default:
		return r.HDOP != nil
	}
	return true
}
