package decoder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"flarm-ng/internal/dispatch"
)

var ErrBadLine = errors.New("decoder: malformed frame line")

type FrameClientConfig struct {
	Name string
	Addr string

	ReconnectDelay time.Duration
	MaxLineBytes   int

	// DialTimeout is used for the initial TCP connect.
	DialTimeout time.Duration

	// DefaultFrequencyHz is used for lines that carry no frequency column.
	DefaultFrequencyHz uint32

	Log logrus.FieldLogger
}

// FrameClient reads demodulated frames from an external receiver over TCP.
// Each line is "<hex> [frequency_hz] [rssi_dbm]".
type FrameClient struct {
	cfg FrameClientConfig
	now func() time.Time

	started atomic.Bool
	closed  atomic.Bool

	mu       sync.RWMutex
	state    string
	lastErr  string
	lastSeen time.Time
	frames   uint64
	rejected uint64

	cancel context.CancelFunc
	done   chan struct{}
}

type FrameSnapshot struct {
	Name        string `json:"name"`
	Addr        string `json:"addr"`
	State       string `json:"state"`
	LastError   string `json:"last_error,omitempty"`
	LastSeenUTC string `json:"last_seen_utc,omitempty"`
	Frames      uint64 `json:"frames"`
	Rejected    uint64 `json:"rejected"`
}

func NewFrameClient(cfg FrameClientConfig) (*FrameClient, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("frame client name is required")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("frame client addr is required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 1 * time.Second
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = 4 * 1024
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		cfg.Log = l
	}

	return &FrameClient{cfg: cfg, now: time.Now, state: "stopped", done: make(chan struct{})}, nil
}

// ParseFrameLine parses one receiver line. Missing frequency falls back to
// defFreq; missing RSSI is zero.
func ParseFrameLine(line []byte, at time.Time, defFreq uint32) (dispatch.RawFrame, error) {
	fields := bytes.Fields(line)
	if len(fields) == 0 || len(fields) > 3 {
		return dispatch.RawFrame{}, fmt.Errorf("%w: %d fields", ErrBadLine, len(fields))
	}
	data := make([]byte, hex.DecodedLen(len(fields[0])))
	if _, err := hex.Decode(data, fields[0]); err != nil {
		return dispatch.RawFrame{}, fmt.Errorf("%w: %v", ErrBadLine, err)
	}
	f := dispatch.RawFrame{Data: data, FrequencyHz: defFreq, At: at}
	if len(fields) > 1 {
		v, err := strconv.ParseUint(string(fields[1]), 10, 32)
		if err != nil {
			return dispatch.RawFrame{}, fmt.Errorf("%w: frequency %q", ErrBadLine, fields[1])
		}
		f.FrequencyHz = uint32(v)
	}
	if len(fields) > 2 {
		v, err := strconv.ParseFloat(string(fields[2]), 64)
		if err != nil {
			return dispatch.RawFrame{}, fmt.Errorf("%w: rssi %q", ErrBadLine, fields[2])
		}
		f.RSSI = v
	}
	return f, nil
}

// Start connects to the configured endpoint and calls onFrame for each parsed
// line. onFrame should be fast; dispatch.Service.Enqueue never blocks.
func (c *FrameClient) Start(ctx context.Context, onFrame func(dispatch.RawFrame)) error {
	if c == nil {
		return fmt.Errorf("frame client is nil")
	}
	if c.closed.Load() {
		return fmt.Errorf("frame client is closed")
	}
	if onFrame == nil {
		return fmt.Errorf("frame onFrame is nil")
	}
	if c.started.Swap(true) {
		return fmt.Errorf("frame client already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setState("connecting", "")

	go func() {
		defer close(c.done)
		c.runLoop(runCtx, onFrame)
	}()
	return nil
}

func (c *FrameClient) Close() {
	if c == nil {
		return
	}
	if c.closed.Swap(true) {
		return
	}
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}

func (c *FrameClient) Snapshot() FrameSnapshot {
	if c == nil {
		return FrameSnapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := FrameSnapshot{
		Name:      c.cfg.Name,
		Addr:      c.cfg.Addr,
		State:     c.state,
		LastError: c.lastErr,
		Frames:    c.frames,
		Rejected:  c.rejected,
	}
	if !c.lastSeen.IsZero() {
		out.LastSeenUTC = c.lastSeen.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func (c *FrameClient) runLoop(ctx context.Context, onFrame func(dispatch.RawFrame)) {
	dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}
	log := c.cfg.Log.WithFields(logrus.Fields{"client": c.cfg.Name, "addr": c.cfg.Addr})

	for {
		select {
		case <-ctx.Done():
			c.setState("stopped", "")
			return
		default:
		}

		c.setState("connecting", "")
		conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
		if err != nil {
			c.setState("error", err.Error())
			log.WithError(err).Debug("frame source dial failed")
			if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
				c.setState("stopped", "")
				return
			}
			continue
		}

		c.setState("connected", "")
		log.Info("frame source connected")
		c.readConn(ctx, conn, onFrame)
		_ = conn.Close()

		if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
			c.setState("stopped", "")
			return
		}
	}
}

func (c *FrameClient) readConn(ctx context.Context, conn net.Conn, onFrame func(dispatch.RawFrame)) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 512), c.cfg.MaxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		now := c.now()
		f, err := ParseFrameLine(line, now, c.cfg.DefaultFrequencyHz)
		if err != nil {
			c.mu.Lock()
			c.rejected++
			c.lastErr = err.Error()
			c.mu.Unlock()
			continue
		}
		onFrame(f)

		c.mu.Lock()
		c.lastSeen = now
		c.frames++
		c.mu.Unlock()
	}

	err := sc.Err()
	switch {
	case ctx.Err() != nil:
		c.setState("stopped", "")
	case err == nil || errors.Is(err, net.ErrClosed):
		c.setState("disconnected", "")
	default:
		c.setState("disconnected", err.Error())
	}
}

func (c *FrameClient) setState(state string, lastErr string) {
	c.mu.Lock()
	c.state = state
	if lastErr != "" {
		c.lastErr = lastErr
	} else {
		// Clear stale errors on healthy/neutral states so status output doesn't
		// look broken after a transient startup failure.
		if state == "connected" || state == "connecting" || state == "stopped" {
			c.lastErr = ""
		}
	}
	c.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
