package traffic

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flarm-ng/internal/flarm"
)

func pos(addr uint32, dist float64) flarm.Position {
	return flarm.Position{Address: addr, AddressType: flarm.AddressFLARM, DistanceM: dist, LatDeg: 47, LonDeg: 8}
}

func TestStore_UpsertReplacesAndCounts(t *testing.T) {
	s := NewStore(StoreConfig{MaxTargets: 10, TTL: time.Minute})
	now := time.Now()

	s.Upsert(now, pos(0xDDA5BA, 500))
	updated := pos(0xDDA5BA, 450)
	updated.AltM = 1300
	s.Upsert(now.Add(time.Second), updated)

	snap := s.Snapshot(now.Add(2 * time.Second))
	require.Len(t, snap, 1)
	assert.Equal(t, 1300, snap[0].AltM)
	assert.Equal(t, uint64(2), snap[0].Updates)
}

func TestStore_AddressTypeIsPartOfKey(t *testing.T) {
	s := NewStore(StoreConfig{})
	now := time.Now()
	a := pos(0x123456, 100)
	b := pos(0x123456, 200)
	b.AddressType = flarm.AddressICAO
	s.Upsert(now, a)
	s.Upsert(now, b)
	assert.Len(t, s.Snapshot(now), 2)
}

func TestStore_EvictsOldest(t *testing.T) {
	s := NewStore(StoreConfig{MaxTargets: 2, TTL: time.Hour})
	now := time.Now()
	s.Upsert(now, pos(1, 10))
	s.Upsert(now.Add(time.Second), pos(2, 20))
	s.Upsert(now.Add(2*time.Second), pos(3, 30))

	snap := s.Snapshot(now.Add(3 * time.Second))
	require.Len(t, snap, 2)
	assert.Equal(t, uint32(2), snap[0].Address)
	assert.Equal(t, uint32(3), snap[1].Address)
}

func TestStore_SnapshotPurgesStaleAndSortsByDistance(t *testing.T) {
	s := NewStore(StoreConfig{MaxTargets: 10, TTL: 10 * time.Second})
	now := time.Now()
	s.Upsert(now.Add(-20*time.Second), pos(1, 5))
	s.Upsert(now, pos(2, 900))
	s.Upsert(now, pos(3, 300))

	snap := s.Snapshot(now)
	require.Len(t, snap, 2)
	assert.Equal(t, uint32(3), snap[0].Address)
	assert.Equal(t, uint32(2), snap[1].Address)
	assert.Equal(t, 2, s.Len())
}

func TestStore_PublishPositionUsesReceptionTime(t *testing.T) {
	s := NewStore(StoreConfig{TTL: 10 * time.Second})
	rx := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	p := pos(7, 10)
	p.ReceivedAt = rx
	s.PublishPosition(p)

	assert.Len(t, s.Snapshot(rx.Add(5*time.Second)), 1)
	assert.Empty(t, s.Snapshot(rx.Add(11*time.Second)))
}

func TestStore_ConcurrentPublish(t *testing.T) {
	s := NewStore(StoreConfig{MaxTargets: 1000, TTL: time.Hour})
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.PublishPosition(pos(uint32(w*100+i), float64(i)))
			}
		}(w)
	}
	wg.Wait()
	assert.Len(t, s.Snapshot(time.Now()), 200)
}

func TestStore_NilSafe(t *testing.T) {
	var s *Store
	s.Upsert(time.Now(), pos(1, 1))
	assert.Nil(t, s.Snapshot(time.Now()))
}
