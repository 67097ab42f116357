package web

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"flarm-ng/internal/flarm"
)

const serviceName = "flarm-ng"

// Status collects runtime state for /api/status. All setters are safe for
// concurrent use.
type Status struct {
	startUnixNano int64
	txTotal       uint64
	lastTxNano    int64
	mode          atomic.Value // string
	gdl90Dest     atomic.Value // string
	txInterval    atomic.Value // string
	ownship       atomic.Value // OwnshipSnapshot

	mu         sync.Mutex
	components map[string]func() any
}

func NewStatus() *Status {
	s := &Status{components: map[string]func() any{}}
	now := time.Now().UTC()
	atomic.StoreInt64(&s.startUnixNano, now.UnixNano())
	s.mode.Store("")
	s.gdl90Dest.Store("")
	s.txInterval.Store("")
	s.ownship.Store(OwnshipSnapshot{})
	return s
}

// OwnshipSnapshot is the UI view of the local aircraft.
type OwnshipSnapshot struct {
	Valid          bool    `json:"valid"`
	Address        string  `json:"address,omitempty"`
	AddressType    string  `json:"address_type,omitempty"`
	AircraftType   string  `json:"aircraft_type,omitempty"`
	LatDeg         float64 `json:"lat_deg"`
	LonDeg         float64 `json:"lon_deg"`
	AltM           float64 `json:"alt_m"`
	GroundSpeedMps float64 `json:"ground_speed_mps"`
	TurnRateDps    float64 `json:"turn_rate_dps"`
	Airborne       bool    `json:"airborne"`
	LastUpdateUTC  string  `json:"last_update_utc,omitempty"`
}

func (s *Status) SetStatic(mode string, gdl90Dest string, txInterval string) {
	if mode != "" {
		s.mode.Store(mode)
	}
	if gdl90Dest != "" {
		s.gdl90Dest.Store(gdl90Dest)
	}
	if txInterval != "" {
		s.txInterval.Store(txInterval)
	}
}

func (s *Status) SetOwnship(nowUTC time.Time, o flarm.Ownship, ok bool) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	if !ok {
		s.ownship.Store(OwnshipSnapshot{LastUpdateUTC: nowUTC.UTC().Format(time.RFC3339Nano)})
		return
	}
	s.ownship.Store(OwnshipSnapshot{
		Valid:          true,
		Address:        hex24(o.Address),
		AddressType:    o.AddressType.String(),
		AircraftType:   o.AircraftType.String(),
		LatDeg:         o.LatDeg,
		LonDeg:         o.LonDeg,
		AltM:           o.AltM,
		GroundSpeedMps: o.GroundSpeedMps,
		TurnRateDps:    o.TurnRateDps,
		Airborne:       o.Airborne,
		LastUpdateUTC:  nowUTC.UTC().Format(time.RFC3339Nano),
	})
}

// MarkTx records a transmitted FLARM frame.
func (s *Status) MarkTx(nowUTC time.Time) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	atomic.StoreInt64(&s.lastTxNano, nowUTC.UnixNano())
	atomic.AddUint64(&s.txTotal, 1)
}

// SetComponent registers a snapshot function reported under name, e.g. the
// frame client or the demodulator supervisor.
func (s *Status) SetComponent(name string, snapshot func() any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snapshot == nil {
		delete(s.components, name)
		return
	}
	s.components[name] = snapshot
}

type StatusSnapshot struct {
	Service       string          `json:"service"`
	NowUTC        string          `json:"now_utc"`
	UptimeSec     int64           `json:"uptime_sec"`
	Mode          string          `json:"mode"`
	GDL90Dest     string          `json:"gdl90_dest"`
	TxInterval    string          `json:"tx_interval"`
	TxFramesTotal uint64          `json:"tx_frames_total"`
	LastTxUTC     string          `json:"last_tx_utc,omitempty"`
	Ownship       OwnshipSnapshot `json:"ownship"`
	Components    map[string]any  `json:"components"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	uptime := nowUTC.Sub(start)
	lastTx := atomic.LoadInt64(&s.lastTxNano)

	snap := StatusSnapshot{
		Service:       serviceName,
		NowUTC:        nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:     int64(uptime.Seconds()),
		Mode:          s.mode.Load().(string),
		GDL90Dest:     s.gdl90Dest.Load().(string),
		TxInterval:    s.txInterval.Load().(string),
		TxFramesTotal: atomic.LoadUint64(&s.txTotal),
		Ownship:       s.ownship.Load().(OwnshipSnapshot),
		Components:    map[string]any{},
	}
	if lastTx != 0 {
		snap.LastTxUTC = time.Unix(0, lastTx).UTC().Format(time.RFC3339Nano)
	}

	s.mu.Lock()
	fns := make(map[string]func() any, len(s.components))
	for name, fn := range s.components {
		fns[name] = fn
	}
	s.mu.Unlock()
	// Snapshots run outside the lock; they may take their own locks.
	for name, fn := range fns {
		snap.Components[name] = fn()
	}
	return snap
}

func hex24(addr uint32) string {
	return fmt.Sprintf("%06X", addr&0xFFFFFF)
}
