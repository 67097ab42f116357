package replay

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"flarm-ng/internal/dispatch"
	"flarm-ng/internal/flarm"
)

func TestRecordReplay_FramesStillDecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flarm-record.log")

	w, err := CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}

	own := flarm.Ownship{
		LatDeg: 46.5, LonDeg: 7.9, AltM: 2100,
		NorthMps: -8, EastMps: 14, GroundSpeedMps: math.Hypot(-8, 14),
		Airborne: true, Address: 0x4B1234, AddressType: flarm.AddressICAO,
		AircraftType: flarm.AircraftGlider,
	}
	rx := time.Unix(1700000123, 400_000_000)
	enc := flarm.Encoder{Turn: flarm.DefaultTurnConfig()}

	// Same monotonic timestamp for every frame so replay has zero waits.
	now := time.Now()
	for i := 0; i < 3; i++ {
		at := rx.Add(time.Duration(i) * time.Second)
		frame, err := enc.Encode(own, at)
		if err != nil {
			t.Fatalf("Encode() error: %v", err)
		}
		if err := w.WriteFrame(now, dispatch.RawFrame{Data: frame, FrequencyHz: 868200000, At: at, RSSI: -75}); err != nil {
			_ = w.Close()
			t.Fatalf("WriteFrame() error: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	var got []dispatch.RawFrame
	err = PlayFile(context.Background(), path, 1, false, func(f dispatch.RawFrame) bool {
		got = append(got, f)
		return true
	})
	if err != nil {
		t.Fatalf("PlayFile() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d frames, want 3", len(got))
	}

	dec := flarm.Decoder{IgnoreDistanceM: 30000}
	for i, f := range got {
		if !f.At.Equal(rx.Add(time.Duration(i) * time.Second)) {
			t.Fatalf("frame %d at %s", i, f.At)
		}
		pos, _, err := dec.Decode(f.Data, own, flarm.Reception{At: f.At, RSSI: f.RSSI, FrequencyHz: f.FrequencyHz})
		if err != nil {
			t.Fatalf("frame %d: Decode() error: %v", i, err)
		}
		if pos.Address != own.Address || pos.AddressType != flarm.AddressICAO {
			t.Fatalf("frame %d: decoded %06x/%s", i, pos.Address, pos.AddressType)
		}
	}
}

func TestPlayFile_MissingFile(t *testing.T) {
	err := PlayFile(context.Background(), filepath.Join(t.TempDir(), "nope.log"), 1, false, func(dispatch.RawFrame) bool { return true })
	if !os.IsNotExist(err) {
		t.Fatalf("err=%v want not-exist", err)
	}
}

func TestPlayFile_StopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.log")
	if err := os.WriteFile(path, []byte("START\n0,0,868200000,0,01\n1000000,0,868200000,0,02\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	err := PlayFile(ctx, path, 1, true, func(dispatch.RawFrame) bool {
		n++
		if n == 5 {
			cancel()
		}
		return true
	})
	if err != nil {
		t.Fatalf("PlayFile() error: %v", err)
	}
	if n != 5 {
		t.Fatalf("n=%d want 5", n)
	}
}
