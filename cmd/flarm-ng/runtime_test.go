package main

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flarm-ng/internal/config"
	"flarm-ng/internal/dispatch"
	"flarm-ng/internal/flarm"
	"flarm-ng/internal/gdl90"
	"flarm-ng/internal/replay"
	"flarm-ng/internal/web"
)

var testNow = time.Date(2024, time.March, 1, 12, 0, 30, 0, time.UTC)

const simYAML = `
ownship:
  address: 'DDA5BA'
  sim:
    enable: true
    center_lat_deg: 47.1
    center_lon_deg: 8.5
sim:
  traffic:
    enable: true
    count: 3
`

func testConfig(t *testing.T, body string) config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(body))
	require.NoError(t, err)
	return cfg
}

func newTestRuntime(t *testing.T, cfg config.Config) *runtime {
	t.Helper()
	log, _ := test.NewNullLogger()
	r, err := newRuntimeWithClock(cfg, log, web.NewLogBuffer(100), func() time.Time { return testNow })
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func listenUDP(t *testing.T) net.PacketConn {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })
	return pc
}

func readDatagram(t *testing.T, pc net.PacketConn) []byte {
	t.Helper()
	buf := make([]byte, 2048)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	return buf[:n]
}

func TestRuntimeMode(t *testing.T) {
	assert.Equal(t, modeSim, runtimeMode(testConfig(t, simYAML)))
	assert.Equal(t, modeLive, runtimeMode(testConfig(t, "radio:\n  addr: '127.0.0.1:30010'\nownship:\n  lat_deg: 47.1\n  lon_deg: 8.5\n")))
	assert.Equal(t, modeReplay, runtimeMode(testConfig(t, "replay:\n  enable: true\n  path: './x.log'\nownship:\n  lat_deg: 47.1\n  lon_deg: 8.5\n")))
}

func TestNewOwnshipSource_Fixed(t *testing.T) {
	cfg := testConfig(t, "radio:\n  addr: '127.0.0.1:30010'\nownship:\n  address: '3e12ab'\n  address_type: icao\n  aircraft_type: piston\n  lat_deg: 47.1\n  lon_deg: 8.5\n  alt_m: 420\n")
	src, svc, err := newOwnshipSource(cfg.Ownship, time.Now, nil)
	require.NoError(t, err)
	require.Nil(t, svc)
	o, ok := src.Ownship()
	require.True(t, ok)
	assert.Equal(t, uint32(0x3E12AB), o.Address)
	assert.Equal(t, flarm.AddressICAO, o.AddressType)
	assert.Equal(t, flarm.AircraftPiston, o.AircraftType)
	assert.Equal(t, 420.0, o.AltM)
	assert.False(t, o.Airborne)
}

func TestNewOwnshipSource_GPSWaitsForFix(t *testing.T) {
	cfg := testConfig(t, "radio:\n  addr: '127.0.0.1:30010'\nownship:\n  address: 'dda5ba'\n  gps:\n    enable: true\n    source: gpsd\n")
	src, svc, err := newOwnshipSource(cfg.Ownship, time.Now, nil)
	require.NoError(t, err)
	require.NotNil(t, svc)
	defer svc.Close()

	_, ok := src.Ownship()
	assert.False(t, ok)
	snap := svc.Snapshot()
	assert.Equal(t, "gpsd", snap.Source)
	assert.Equal(t, "127.0.0.1:2947", snap.GPSDAddr)
}

func TestRuntime_SimulatedTrafficReachesStore(t *testing.T) {
	r := newTestRuntime(t, testConfig(t, simYAML))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.svc.Run(ctx) }()

	require.NoError(t, r.trafficLoop().Tick(testNow, r.enqueue))
	require.Eventually(t, func() bool { return r.store.Len() == 3 }, 2*time.Second, 10*time.Millisecond)

	targets := r.store.Snapshot(testNow)
	require.Len(t, targets, 3)
	for _, tgt := range targets {
		assert.Equal(t, uint32(868200000), tgt.FrequencyHz)
		assert.Greater(t, tgt.DistanceM, 1000.0)
	}
	assert.Equal(t, uint64(3), r.svc.Stats().Received.Load())
	assert.Zero(t, r.svc.Stats().CRCErr.Load())

	cancel()
	<-done
}

func TestRuntime_TransmitSendsTxLine(t *testing.T) {
	pc := listenUDP(t)
	cfg := testConfig(t, simYAML+"radio:\n  tx_dest: '"+pc.LocalAddr().String()+"'\n")
	r := newTestRuntime(t, cfg)

	r.transmit()

	line := strings.TrimSpace(string(readDatagram(t, pc)))
	fields := strings.Fields(line)
	require.Len(t, fields, 3)
	assert.Len(t, fields[0], 2*flarm.FrameSize)
	assert.Equal(t, "868200000", fields[1])
	assert.Equal(t, "14", fields[2])

	snap := r.status.Snapshot(testNow)
	assert.Equal(t, uint64(1), snap.TxFramesTotal)
	assert.Equal(t, uint64(1), r.svc.Stats().Transmitted.Load())
}

func TestRuntime_HeartbeatEmitsGDL90(t *testing.T) {
	pc := listenUDP(t)
	cfg := testConfig(t, simYAML+"gdl90:\n  enable: true\n  dest: '"+pc.LocalAddr().String()+"'\n")
	r := newTestRuntime(t, cfg)

	r.heartbeat(testNow)

	var ids []byte
	for i := 0; i < 4; i++ {
		msg, ok, err := gdl90.Unframe(readDatagram(t, pc))
		require.NoError(t, err)
		require.True(t, ok)
		ids = append(ids, msg[0])
	}
	assert.Equal(t, []byte{0x00, 0x65, 0x0A, 0x0B}, ids)

	snap := r.status.Snapshot(testNow)
	assert.True(t, snap.Ownship.Valid)
	assert.Equal(t, "DDA5BA", snap.Ownship.Address)
}

func TestRuntime_RecordsEnqueuedFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rx.log")
	cfg := testConfig(t, simYAML+"record:\n  enable: true\n  path: '"+path+"'\n")
	r := newTestRuntime(t, cfg)

	frame := []byte{0x01, 0x02, 0x03}
	assert.True(t, r.enqueue(dispatch.RawFrame{Data: frame, FrequencyHz: 868400000, At: testNow, RSSI: -81}))
	r.Close()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := replay.NewReader(f).ReadAll()
	require.NoError(t, err)

	var data []replay.Record
	for _, rec := range recs {
		if rec.Frame != nil {
			data = append(data, rec)
		}
	}
	require.Len(t, data, 1)
	assert.Equal(t, frame, data[0].Frame)
	assert.Equal(t, uint32(868400000), data[0].FrequencyHz)
	assert.True(t, testNow.Equal(data[0].Received))
}

func TestNewLogger(t *testing.T) {
	logs := web.NewLogBuffer(10)
	log, err := newLogger("warn", logs)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())

	log.SetOutput(io.Discard)
	log.Warn("hooked")
	entries, _ := logs.Snapshot(0, logrus.TraceLevel)
	require.Len(t, entries, 1)
	assert.Equal(t, "hooked", entries[0].Message)

	_, err = newLogger("loud", nil)
	assert.Error(t, err)
}
