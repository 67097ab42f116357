package decoder

import "sync"

// tailBuffer is a fixed-size ring of the most recent output lines.
type tailBuffer struct {
	maxLineBytes int

	mu    sync.Mutex
	ring  []string
	next  int
	count int
}

func newTailBuffer(size, maxLineBytes int) *tailBuffer {
	return &tailBuffer{ring: make([]string, max(size, 0)), maxLineBytes: maxLineBytes}
}

func (t *tailBuffer) add(line string) {
	if len(line) > t.maxLineBytes {
		line = line[:t.maxLineBytes]
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.ring) == 0 {
		return
	}
	t.ring[t.next] = line
	t.next = (t.next + 1) % len(t.ring)
	t.count = min(t.count+1, len(t.ring))
}

// lines returns the buffered lines oldest first.
func (t *tailBuffer) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, t.count)
	start := (t.next - t.count + len(t.ring)) % max(len(t.ring), 1)
	for i := range t.count {
		out = append(out, t.ring[(start+i)%len(t.ring)])
	}
	return out
}
