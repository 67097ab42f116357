// Package udp sends GDL90 reports and transmit frames as UDP datagrams.
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("udp: broadcaster closed")

type conn interface {
	Write(p []byte) (int, error)
	Close() error
}

type dialFunc func(network, address string) (conn, error)

// Broadcaster writes datagrams to one destination, which may be a subnet
// broadcast address. Send is safe for concurrent use.
type Broadcaster struct {
	dest string

	mu sync.Mutex
	c  conn
}

func NewBroadcaster(dest string) (*Broadcaster, error) {
	d := net.Dialer{Control: allowBroadcast}
	return newBroadcaster(dest, func(network, address string) (conn, error) {
		return d.Dial(network, address)
	})
}

func newBroadcaster(dest string, dial dialFunc) (*Broadcaster, error) {
	if _, _, err := net.SplitHostPort(dest); err != nil {
		return nil, fmt.Errorf("udp dest %q: %w", dest, err)
	}
	c, err := dial("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("udp dial %s: %w", dest, err)
	}
	return &Broadcaster{dest: dest, c: c}, nil
}

func (b *Broadcaster) Dest() string { return b.dest }

// Send writes payload as one datagram. Empty payloads are ignored.
func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.c == nil {
		return ErrClosed
	}
	if _, err := b.c.Write(payload); err != nil {
		return fmt.Errorf("udp send to %s: %w", b.dest, err)
	}
	return nil
}

func (b *Broadcaster) Close() error {
	b.mu.Lock()
	c := b.c
	b.c = nil
	b.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}
