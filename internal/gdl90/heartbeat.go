package gdl90

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	msgHeartbeat      = 0x00
	msgOwnship        = 0x0A
	msgOwnshipGeoAlt  = 0x0B
	msgTraffic        = 0x14
	msgForeFlight     = 0x65
	foreFlightIDSubID = 0x00
)

// Heartbeat status byte 1 and 2 bits.
const (
	hbUATInitialized = 0x01
	hbAddrTalkback   = 0x10
	hbMaintenance    = 0x40
	hbGPSValid       = 0x80

	hbUTCOK        = 0x01
	hbTimestampMSB = 0x80
)

// HeartbeatFrame builds the once-per-second Heartbeat (0x00) stamped with
// the UTC second of day of now.
func HeartbeatFrame(now time.Time, gpsValid bool, maintenanceRequired bool) []byte {
	st1 := byte(hbUATInitialized | hbAddrTalkback)
	if gpsValid {
		st1 |= hbGPSValid
	}
	if maintenanceRequired {
		st1 |= hbMaintenance
	}

	utc := now.UTC()
	secs := uint32(utc.Hour()*3600 + utc.Minute()*60 + utc.Second())
	st2 := byte(hbUTCOK)
	if secs&0x10000 != 0 {
		st2 |= hbTimestampMSB
	}

	msg := []byte{msgHeartbeat, st1, st2, 0, 0, 0, 0}
	binary.LittleEndian.PutUint16(msg[3:5], uint16(secs))
	// Bytes 5-6 are the uplink/basic message counts; we receive no UAT.
	return Frame(msg)
}

// OwnshipGeoAltFrame builds the Ownship Geometric Altitude (0x0B) message:
// altitude above the WGS-84 ellipsoid in 5 ft steps, vertical figure of merit
// not available.
func OwnshipGeoAltFrame(altFeet int) []byte {
	alt := clampInt(roundDiv(altFeet, 5), math.MinInt16, math.MaxInt16)
	msg := make([]byte, 5)
	msg[0] = msgOwnshipGeoAlt
	binary.BigEndian.PutUint16(msg[1:3], uint16(int16(alt)))
	binary.BigEndian.PutUint16(msg[3:5], 0x7FFF)
	return Frame(msg)
}
