package traffic

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"flarm-ng/internal/flarm"
)

type StoreConfig struct {
	// MaxTargets limits memory use. When exceeded, oldest targets are evicted.
	MaxTargets int
	// TTL controls how long a target is kept without updates.
	TTL time.Duration
}

// Key identifies an aircraft. The same 24-bit value may be in use as both a
// random and an ICAO address.
type Key struct {
	AddressType flarm.AddressType
	Address     uint32
}

type Store struct {
	mu sync.RWMutex

	cfg StoreConfig
	now func() time.Time

	targets map[Key]target
}

type target struct {
	pos     flarm.Position
	seenAt  time.Time
	updates uint64
}

// Target is one snapshot row.
type Target struct {
	flarm.Position
	Updates uint64 `json:"updates"`
}

func NewStore(cfg StoreConfig) *Store {
	if cfg.MaxTargets <= 0 {
		cfg.MaxTargets = 200
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &Store{
		cfg:     cfg,
		now:     time.Now,
		targets: make(map[Key]target),
	}
}

// PublishPosition records a decoded position, stamped with its reception
// time (or now when unset).
func (s *Store) PublishPosition(p flarm.Position) {
	at := p.ReceivedAt
	if at.IsZero() {
		at = s.now()
	}
	s.Upsert(at, p)
}

func (s *Store) Upsert(nowUTC time.Time, p flarm.Position) {
	if s == nil {
		return
	}
	if nowUTC.IsZero() {
		nowUTC = s.now()
	}
	k := Key{AddressType: p.AddressType, Address: p.Address}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.targets[k]
	s.targets[k] = target{pos: p, seenAt: nowUTC.UTC(), updates: prev.updates + 1}

	for len(s.targets) > s.cfg.MaxTargets {
		delete(s.targets, s.oldestLocked())
	}
}

func (s *Store) oldestLocked() Key {
	var (
		oldest Key
		at     time.Time
	)
	for k, v := range s.targets {
		if at.IsZero() || v.seenAt.Before(at) {
			oldest, at = k, v.seenAt
		}
	}
	return oldest
}

// Len reports the number of stored targets, stale ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.targets)
}

// Snapshot purges stale targets and returns the rest, nearest first.
func (s *Store) Snapshot(nowUTC time.Time) []Target {
	if s == nil {
		return nil
	}
	if nowUTC.IsZero() {
		nowUTC = s.now()
	}

	s.mu.Lock()
	cutoff := nowUTC.UTC().Add(-s.cfg.TTL)
	for k, v := range s.targets {
		if v.seenAt.Before(cutoff) {
			delete(s.targets, k)
		}
	}

	out := make([]Target, 0, len(s.targets))
	for _, v := range s.targets {
		out = append(out, Target{Position: v.pos, Updates: v.updates})
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b Target) int {
		return cmp.Or(
			cmp.Compare(a.DistanceM, b.DistanceM),
			cmp.Compare(a.AddressType, b.AddressType),
			cmp.Compare(a.Address, b.Address),
		)
	})
	return out
}
