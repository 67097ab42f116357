package gdl90

import (
	"testing"
	"time"
)

func TestGolden_Heartbeat_Packing(t *testing.T) {
	nowUTC := time.Date(2020, time.January, 1, 1, 2, 3, 0, time.UTC) // 01:02:03
	msg := unframeAndCheckCRC(t, HeartbeatFrame(nowUTC, true, false))

	assertBytes(t, msg, []byte{0x00, 0x91, 0x01, 0x8B, 0x0E, 0x00, 0x00})
}

func TestGolden_Heartbeat_TimestampBit16(t *testing.T) {
	// 18:12:16 UTC is 65536 s past midnight.
	msg := unframeAndCheckCRC(t, HeartbeatFrame(time.Date(2020, 1, 1, 18, 12, 16, 0, time.UTC), false, true))
	assertBytes(t, msg, []byte{0x00, 0x51, 0x81, 0x00, 0x00, 0x00, 0x00})
}

func TestGolden_OwnshipGeoAlt(t *testing.T) {
	msg := unframeAndCheckCRC(t, OwnshipGeoAltFrame(1502))
	// 1502 ft / 5 = 300 (0x012C), VFOM unavailable.
	assertBytes(t, msg, []byte{0x0B, 0x01, 0x2C, 0x7F, 0xFF})

	msg = unframeAndCheckCRC(t, OwnshipGeoAltFrame(-500))
	assertBytes(t, msg, []byte{0x0B, 0xFF, 0x9C, 0x7F, 0xFF})
}

func TestGolden_OwnshipReport_MinimalVector(t *testing.T) {
	msg := unframeAndCheckCRC(t, OwnshipReportFrame(Ownship{
		ICAO:     [3]byte{0x01, 0x02, 0x03},
		LatDeg:   45.0,
		LonDeg:   -90.0,
		NIC:      8,
		NACp:     8,
		GroundKt: 100,
		TrackDeg: 90,
		Callsign: "N12345",
		Emitter:  EmitterLight,
	}))

	want := []byte{
		0x0A,
		0x00,
		0x01, 0x02, 0x03,
		0x20, 0x00, 0x00, // lat 45 deg
		0xC0, 0x00, 0x00, // lon -90 deg
		0x02, 0x89, // alt=0ft => 0x028 and flags 0x09
		0x88,             // NIC/NACp
		0x06, 0x48, 0x00, // gs=100 (0x064), vvel=unknown (0x800)
		0x40, // track=90deg => 64
		0x01, // emitter
		'N', '1', '2', '3', '4', '5', ' ', ' ',
		0x00, // priority/emergency
	}
	assertBytes(t, msg, want)
}

func TestGolden_TrafficReport_MinimalVector(t *testing.T) {
	msg := unframeAndCheckCRC(t, TrafficReportFrame(Traffic{
		AddrType:        0x00,
		ICAO:            [3]byte{0x0A, 0x0B, 0x0C},
		LatDeg:          45.0,
		LonDeg:          -90.0,
		NIC:             8,
		NACp:            7,
		GroundKt:        120,
		TrackDeg:        90,
		EmitterCategory: EmitterLight,
		Tail:            "TGT0001",
	}))

	want := []byte{
		0x14,
		0x00,
		0x0A, 0x0B, 0x0C,
		0x20, 0x00, 0x00, // lat 45 deg
		0xC0, 0x00, 0x00, // lon -90 deg
		0x02, 0x89, // alt=0ft => 0x028 and indicator bits (track-valid + airborne)
		0x87,
		0x07, 0x80, 0x00, // spd=120 (0x078), vvel=0
		0x40, // track
		0x01, // emitter
		'T', 'G', 'T', '0', '0', '0', '1', ' ',
		0x00,
	}
	assertBytes(t, msg, want)
}

func assertBytes(t *testing.T, got, want []byte) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len %d, want %d (msg=% X)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte[%d] = 0x%02X, want 0x%02X (msg=% X)", i, got[i], want[i], got)
		}
	}
}

func unframeAndCheckCRC(t *testing.T, frame []byte) []byte {
	t.Helper()
	msg, ok, err := Unframe(frame)
	if err != nil {
		t.Fatalf("Unframe() error: %v", err)
	}
	if !ok {
		t.Fatalf("crc mismatch for frame % X", frame)
	}
	return msg
}
