package gps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGPSDState_TPVUpdatesFix(t *testing.T) {
	now := time.Date(2025, 12, 22, 12, 0, 0, 0, time.UTC)
	st := newGPSDState("127.0.0.1:2947")

	line := `{"class":"TPV","mode":3,"time":"2025-12-22T12:00:00.000Z","lat":45.5,"lon":-122.9,"altMSL":100.0,"speed":50.0,"track":270.0,"climb":1.0,"eph":4.2,"epv":7.0}`
	updated, err := st.applyLine(now, line)
	require.NoError(t, err)
	require.True(t, updated)

	snap := st.snapshot()
	require.True(t, snap.Valid)
	require.Equal(t, "gpsd", snap.Source)
	require.InDelta(t, 45.5, snap.LatDeg, 1e-9)
	require.InDelta(t, -122.9, snap.LonDeg, 1e-9)
	require.InDelta(t, 50.0, *snap.GroundSpeedMps, 1e-9)
	require.InDelta(t, 270.0, *snap.TrackDeg, 1e-9)
	require.InDelta(t, 100.0, *snap.AltM, 1e-9)
	require.InDelta(t, 1.0, *snap.VerticalSpeedMps, 1e-9)
	require.Equal(t, 3, *snap.FixMode)
	require.InDelta(t, 4.2, *snap.HorizAccM, 1e-9)
	require.InDelta(t, 7.0, *snap.VertAccM, 1e-9)
	require.Equal(t, "2025-12-22T12:00:00Z", snap.LastFixUTC)
}

func TestGPSDState_PrefersEllipsoidalAltitude(t *testing.T) {
	st := newGPSDState("")
	_, err := st.applyLine(time.Now().UTC(), `{"class":"TPV","mode":3,"lat":1,"lon":2,"altHAE":148.5,"altMSL":100.0}`)
	require.NoError(t, err)
	require.InDelta(t, 148.5, *st.snapshot().AltM, 1e-9)
}

func TestGPSDState_EpxEpyCombine(t *testing.T) {
	st := newGPSDState("")
	_, err := st.applyLine(time.Now().UTC(), `{"class":"TPV","mode":3,"lat":1,"lon":2,"epx":3.0,"epy":4.0}`)
	require.NoError(t, err)
	require.InDelta(t, 5.0, *st.snapshot().HorizAccM, 1e-9)
}

func TestGPSDState_NoFixModeNotValid(t *testing.T) {
	st := newGPSDState("")
	_, err := st.applyLine(time.Now().UTC(), `{"class":"TPV","mode":1,"lat":45.5,"lon":-122.9}`)
	require.NoError(t, err)
	require.False(t, st.snapshot().Valid)
}

func TestGPSDState_SKYCountsUsedSatellites(t *testing.T) {
	st := newGPSDState("127.0.0.1:2947")
	line := `{"class":"SKY","hdop":0.9,"satellites":[{"used":true},{"used":false},{"used":true}]}`
	updated, err := st.applyLine(time.Now().UTC(), line)
	require.NoError(t, err)
	require.True(t, updated)

	snap := st.snapshot()
	require.Equal(t, 2, *snap.Satellites)
	require.InDelta(t, 0.9, *snap.HDOP, 1e-9)
}

func TestGPSDState_SKYPrefersUSat(t *testing.T) {
	st := newGPSDState("")
	_, err := st.applyLine(time.Now().UTC(), `{"class":"SKY","uSat":11,"satellites":[{"used":true}]}`)
	require.NoError(t, err)
	require.Equal(t, 11, *st.snapshot().Satellites)
}

func TestGPSDState_IgnoresOtherClasses(t *testing.T) {
	st := newGPSDState("")
	updated, err := st.applyLine(time.Now().UTC(), `{"class":"VERSION","release":"3.25"}`)
	require.NoError(t, err)
	require.False(t, updated)
}

func TestGPSDState_BadJSON(t *testing.T) {
	st := newGPSDState("")
	_, err := st.applyLine(time.Now().UTC(), `{"class":`)
	require.Error(t, err)
}
