package dispatch

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Stats counts codec outcomes. Counters are safe for concurrent use; the
// receive and transmit paths both update them.
type Stats struct {
	Received      atomic.Uint64
	Transmitted   atomic.Uint64
	CRCErr        atomic.Uint64
	LengthErr     atomic.Uint64
	OutOfDistance atomic.Uint64
	Zero0x01Err   atomic.Uint64
	Zero0Err      atomic.Uint64
	AddrTypeErr   atomic.Uint64
	ParityErr     atomic.Uint64
	DecodeErr     atomic.Uint64
	QueueFull     atomic.Uint64
	TxSkipped     atomic.Uint64
	TxNoOwnship   atomic.Uint64

	AddrRandom atomic.Uint64
	AddrICAO   atomic.Uint64
	AddrFLARM  atomic.Uint64

	mu    sync.Mutex
	freqs []freqTiming
}

type freqTiming struct {
	freq        uint32
	lastDeciSec uint16
}

// DeciSecondOfMinute is the receive-timing resolution: tenths of a second
// since the start of the current minute (0..599).
func DeciSecondOfMinute(t time.Time) uint16 {
	return uint16(t.Second()*10 + t.Nanosecond()/int(100*time.Millisecond))
}

// MarkFrequency records when a frame was last heard on freq.
func (s *Stats) MarkFrequency(freq uint32, deci uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.freqs {
		if s.freqs[i].freq == freq {
			s.freqs[i].lastDeciSec = deci
			return
		}
	}
	s.freqs = append(s.freqs, freqTiming{freq: freq, lastDeciSec: deci})
}

// FrequencyTiming is one row of the receive-timing table.
type FrequencyTiming struct {
	FrequencyHz uint32 `json:"frequency_hz"`
	LastDeciSec uint16 `json:"last_decisec"`
}

// Frequencies returns the timing table in first-seen order.
func (s *Stats) Frequencies() []FrequencyTiming {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FrequencyTiming, 0, len(s.freqs))
	for _, f := range s.freqs {
		out = append(out, FrequencyTiming{FrequencyHz: f.freq, LastDeciSec: f.lastDeciSec})
	}
	return out
}

// Counters returns a point-in-time copy of every counter keyed by name.
func (s *Stats) Counters() map[string]uint64 {
	return map[string]uint64{
		"received":      s.Received.Load(),
		"transmitted":   s.Transmitted.Load(),
		"crcErr":        s.CRCErr.Load(),
		"lengthErr":     s.LengthErr.Load(),
		"outOfDistance": s.OutOfDistance.Load(),
		"zero0x01Err":   s.Zero0x01Err.Load(),
		"zero0Err":      s.Zero0Err.Load(),
		"addrTypeErr":   s.AddrTypeErr.Load(),
		"parityErr":     s.ParityErr.Load(),
		"decodeErr":     s.DecodeErr.Load(),
		"queueFull":     s.QueueFull.Load(),
		"txSkipped":     s.TxSkipped.Load(),
		"txNoOwnship":   s.TxNoOwnship.Load(),
		"addrRandom":    s.AddrRandom.Load(),
		"addrICAO":      s.AddrICAO.Load(),
		"addrFLARM":     s.AddrFLARM.Load(),
	}
}

// Diagnostics is the JSON-shaped stats report. Frequencies keep their
// first-seen order.
type Diagnostics struct {
	Frequencies []FrequencyTiming `json:"frequencies"`
	Counters    map[string]uint64 `json:"counters"`
}

func (s *Stats) Diagnostics() Diagnostics {
	return Diagnostics{
		Frequencies: s.Frequencies(),
		Counters:    s.Counters(),
	}
}

// MarshalJSON renders the diagnostics report.
func (s *Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Diagnostics())
}
