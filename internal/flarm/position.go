package flarm

import (
	"math"

	"github.com/golang/geo/s2"
)

// Position fields carry degrees*1e7 shifted right by 7 (about 1.4 m of
// latitude per LSB), truncated to the field width. Receivers recover the high
// bits from their own position.
const (
	latModulus = 0x080000 // 19 bits
	latHalf    = 0x040000
	latMask    = latModulus - 1

	lonModulus = 0x100000 // 20 bits
	lonHalf    = 0x080000
	lonMask    = lonModulus - 1

	coordScale = 1e7
	coordShift = 7

	earthRadiusM = 6371008.8
)

func roundCoord(deg float64) int32 {
	return int32(math.Floor(deg*coordScale)) >> coordShift
}

func encodeLat(deg float64) uint32 { return uint32(roundCoord(deg)) & latMask }
func encodeLon(deg float64) uint32 { return uint32(roundCoord(deg)) & lonMask }

// reconstruct recenters the wire value onto ref. The delta lies in
// [-half, half); a delta of exactly half wraps to the negative side.
func reconstruct(wire uint32, refDeg float64, modulus, half uint32) float64 {
	round := roundCoord(refDeg)
	delta := int32((wire - uint32(round)) & (modulus - 1))
	if delta >= int32(half) {
		delta -= int32(modulus)
	}
	return float64((delta+round)<<coordShift) / coordScale
}

func reconstructLat(wire uint32, ownLat float64) float64 {
	return reconstruct(wire, ownLat, latModulus, latHalf)
}

func reconstructLon(wire uint32, ownLon float64) float64 {
	return reconstruct(wire, ownLon, lonModulus, lonHalf)
}

// Vector is the position of a target relative to own ship.
type Vector struct {
	NorthM     float64
	EastM      float64
	BearingDeg float64
	DistanceM  float64
}

// Relative computes the offset from (lat0, lon0) to (lat1, lon1). North and
// east use a local flat-earth projection; distance is great-circle.
func Relative(lat0, lon0, lat1, lon1 float64) Vector {
	const degToM = earthRadiusM * math.Pi / 180
	north := (lat1 - lat0) * degToM
	dLon := lon1 - lon0
	if dLon > 180 {
		dLon -= 360
	} else if dLon < -180 {
		dLon += 360
	}
	east := dLon * degToM * math.Cos(lat0*math.Pi/180)

	a := s2.LatLngFromDegrees(lat0, lon0)
	b := s2.LatLngFromDegrees(lat1, lon1)
	dist := a.Distance(b).Radians() * earthRadiusM

	bearing := math.Atan2(east, north) * 180 / math.Pi
	if bearing < 0 {
		bearing += 360
	}
	return Vector{NorthM: north, EastM: east, BearingDeg: bearing, DistanceM: dist}
}
