package gps

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func nmeaLine(payload string) string {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, ck)
}

func mustApply(t *testing.T, st *nmeaState, at time.Time, payload string) bool {
	t.Helper()
	s, err := parseNMEASentence(nmeaLine(payload))
	require.NoError(t, err)
	return st.apply(at, s)
}

var t0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func TestParseNMEASentence_ChecksumOK(t *testing.T) {
	s, err := parseNMEASentence(nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"))
	require.NoError(t, err)
	require.Equal(t, "RMC", s.Type)
}

func TestParseNMEASentence_ChecksumMismatch(t *testing.T) {
	good := nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	_, err := parseNMEASentence(good[:len(good)-2] + "00")
	require.ErrorIs(t, err, errNMEAChecksum)
}

func TestParseNMEASentence_Malformed(t *testing.T) {
	for _, line := range []string{"GPRMC,1*00", "$GPRMC,1", "$GPRMC,1*Z", "$GPRMC,1*ZZ", nmeaLine("GP")} {
		_, err := parseNMEASentence(line)
		require.ErrorIs(t, err, errNMEAFormat, line)
	}
}

func TestParseNMEALatLon(t *testing.T) {
	lat, ok := parseNMEALatLon("4807.038", "N")
	require.True(t, ok)
	require.InDelta(t, 48.1173, lat, 1e-4)

	lon, ok := parseNMEALatLon("01131.000", "W")
	require.True(t, ok)
	require.InDelta(t, -11.5167, lon, 1e-4)

	_, ok = parseNMEALatLon("4807.038", "X")
	require.False(t, ok)
	_, ok = parseNMEALatLon("4875.000", "N")
	require.False(t, ok, "minutes out of range")
	_, ok = parseNMEALatLon("", "N")
	require.False(t, ok)
}

func TestNMEAState_RMCUpdatesFix(t *testing.T) {
	var st nmeaState
	require.True(t, mustApply(t, &st, t0, "GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"))

	snap := st.snapshot()
	require.True(t, snap.Valid)
	require.InDelta(t, 48.1173, snap.LatDeg, 1e-4)
	require.InDelta(t, 11.5167, snap.LonDeg, 1e-4)
	require.NotNil(t, snap.GroundSpeedMps)
	require.InDelta(t, 11.52, *snap.GroundSpeedMps, 0.01)
	require.NotNil(t, snap.TrackDeg)
	require.InDelta(t, 84.4, *snap.TrackDeg, 1e-9)
	require.Nil(t, snap.TurnRateDps)
	require.Equal(t, t0, snap.LastFix)
}

func TestNMEAState_RMCVoidIgnored(t *testing.T) {
	var st nmeaState
	require.False(t, mustApply(t, &st, t0, "GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"))
	require.False(t, st.snapshot().Valid)
}

func TestNMEAState_GGAAltitudeIsEllipsoidal(t *testing.T) {
	var st nmeaState
	require.True(t, mustApply(t, &st, t0, "GNGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"))

	snap := st.snapshot()
	require.NotNil(t, snap.AltM)
	require.InDelta(t, 592.3, *snap.AltM, 1e-9)
}

func TestNMEAState_GGAParsesQualitySatsHDOP(t *testing.T) {
	var st nmeaState
	require.True(t, mustApply(t, &st, t0, "GNGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"))

	snap := st.snapshot()
	require.Equal(t, 1, *snap.FixQuality)
	require.Equal(t, 8, *snap.Satellites)
	require.InDelta(t, 0.9, *snap.HDOP, 1e-9)
}

func TestNMEAState_GGANoFixIgnored(t *testing.T) {
	var st nmeaState
	require.False(t, mustApply(t, &st, t0, "GNGGA,123519,4807.038,N,01131.000,E,0,00,,,M,,M,,"))
}

func TestNMEAState_DerivesTurnRate(t *testing.T) {
	var st nmeaState
	mustApply(t, &st, t0, "GPRMC,123519,A,4807.038,N,01131.000,E,022.4,355.0,230394,003.1,W")
	mustApply(t, &st, t0.Add(2*time.Second), "GPRMC,123521,A,4807.038,N,01131.000,E,022.4,005.0,230394,003.1,W")

	snap := st.snapshot()
	require.NotNil(t, snap.TurnRateDps)
	require.InDelta(t, 5.0, *snap.TurnRateDps, 1e-9)
}

func TestNMEAState_TurnRateZeroWhenSlow(t *testing.T) {
	var st nmeaState
	mustApply(t, &st, t0, "GPRMC,123519,A,4807.038,N,01131.000,E,001.0,010.0,230394,003.1,W")
	mustApply(t, &st, t0.Add(time.Second), "GPRMC,123520,A,4807.038,N,01131.000,E,001.0,200.0,230394,003.1,W")

	require.Equal(t, 0.0, *st.snapshot().TurnRateDps)
}

func TestNMEAState_DerivesClimb(t *testing.T) {
	var st nmeaState
	mustApply(t, &st, t0, "GNGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,")
	mustApply(t, &st, t0.Add(2*time.Second), "GNGGA,123521,4807.038,N,01131.000,E,1,08,0.9,549.4,M,46.9,M,,")

	snap := st.snapshot()
	require.NotNil(t, snap.VerticalSpeedMps)
	require.InDelta(t, 2.0, *snap.VerticalSpeedMps, 1e-9)
}

func TestNMEAState_NoDerivationAcrossGap(t *testing.T) {
	var st nmeaState
	mustApply(t, &st, t0, "GNGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,")
	mustApply(t, &st, t0.Add(maxDeriveGap+time.Second), "GNGGA,123530,4807.038,N,01131.000,E,1,08,0.9,600.0,M,46.9,M,,")

	require.Nil(t, st.snapshot().VerticalSpeedMps)
}
