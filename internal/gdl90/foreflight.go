package gdl90

import "strings"

// ForeFlight ID capability bit 0 selects the datum of the 0x0B geometric
// altitude: clear is WGS-84 ellipsoid, set is MSL.
const ffCapGeoAltMSL = 0x01

// ForeFlightIDFrame builds the ForeFlight ID message (0x65, sub-ID 0) that
// names the device in EFB device lists. Empty names use defaults.
func ForeFlightIDFrame(shortName string, longName string) []byte {
	msg := make([]byte, 39)
	msg[0] = msgForeFlight
	msg[1] = foreFlightIDSubID
	msg[2] = 1 // version
	for i := 3; i < 11; i++ {
		msg[i] = 0xFF // serial number not set
	}
	copy(msg[11:19], nameField(shortName, "FLARM", 8))
	copy(msg[19:35], nameField(longName, "flarm-ng", 16))
	// FLARM altitudes are ellipsoidal, so ffCapGeoAltMSL stays clear.
	msg[38] = 0
	return Frame(msg)
}

func nameField(s, def string, n int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		s = def
	}
	if len(s) > n {
		s = s[:n]
	}
	return s
}
