package gps

import (
	"math"

	"flarm-ng/internal/flarm"
)

// airborneSpeedMps is the ground speed above which the own-ship is
// reported airborne.
const airborneSpeedMps = 5.0

// Accuracy codes broadcast for any valid fix.
const (
	defaultHAccuracy = 2
	defaultVAccuracy = 1
)

// Source serves the receiver's latest fix as the FLARM own-ship. Identity
// carries address, types and privacy flags; kinematics come from the fix.
type Source struct {
	GPS      *Service
	Identity flarm.Ownship
}

func (s Source) Ownship() (flarm.Ownship, bool) {
	return ownshipFromSnapshot(s.GPS.Snapshot(), s.Identity)
}

func ownshipFromSnapshot(snap Snapshot, id flarm.Ownship) (flarm.Ownship, bool) {
	if !snap.Valid || snap.FixStale || snap.AltM == nil {
		return flarm.Ownship{}, false
	}
	o := flarm.Ownship{
		LatDeg:       snap.LatDeg,
		LonDeg:       snap.LonDeg,
		AltM:         *snap.AltM,
		Address:      id.Address,
		AddressType:  id.AddressType,
		AircraftType: id.AircraftType,
		Stealth:      id.Stealth,
		NoTrack:      id.NoTrack,
		HAccuracy:    defaultHAccuracy,
		VAccuracy:    defaultVAccuracy,
	}
	if snap.GroundSpeedMps != nil {
		o.GroundSpeedMps = *snap.GroundSpeedMps
	}
	if snap.TrackDeg != nil {
		rad := *snap.TrackDeg * math.Pi / 180
		o.NorthMps = o.GroundSpeedMps * math.Cos(rad)
		o.EastMps = o.GroundSpeedMps * math.Sin(rad)
	}
	if snap.VerticalSpeedMps != nil {
		o.VerticalSpeedMps = *snap.VerticalSpeedMps
	}
	if snap.TurnRateDps != nil {
		o.TurnRateDps = *snap.TurnRateDps
	}
	o.Airborne = o.GroundSpeedMps >= airborneSpeedMps
	return o, true
}
