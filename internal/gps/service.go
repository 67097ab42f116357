package gps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultBaud      = 9600
	defaultMaxFixAge = 3 * time.Second

	reconnectMin = 250 * time.Millisecond
	reconnectMax = 10 * time.Second
)

// Config controls the GPS reader.
//
// u-blox receivers typically appear as /dev/ttyACM* and emit NMEA with GN
// talker IDs at 9600 baud. An empty Device is auto-detected.
type Config struct {
	Enable bool

	// Source is "nmea" (direct serial) or "gpsd". Empty means "nmea".
	Source   string
	GPSDAddr string

	Device string
	Baud   int

	// MaxFixAge marks the snapshot stale when no fix arrived for this long.
	MaxFixAge time.Duration
}

func (c Config) source() string {
	if src := strings.ToLower(strings.TrimSpace(c.Source)); src != "" {
		return src
	}
	return "nmea"
}

// Service keeps the latest fix from a serial receiver or gpsd. Lost
// connections are reopened with backoff until Close.
type Service struct {
	cfg Config
	log logrus.FieldLogger
	now func() time.Time

	last atomic.Pointer[Snapshot]

	mu      sync.Mutex
	errMu   sync.Mutex
	cancel  context.CancelFunc
	current io.Closer
	wg      sync.WaitGroup
}

func New(cfg Config, log logrus.FieldLogger) *Service {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	if cfg.Baud <= 0 {
		cfg.Baud = defaultBaud
	}
	if cfg.MaxFixAge <= 0 {
		cfg.MaxFixAge = defaultMaxFixAge
	}
	cfg.GPSDAddr = strings.TrimSpace(cfg.GPSDAddr)
	if cfg.GPSDAddr == "" {
		cfg.GPSDAddr = gpsdDefaultAddr
	}

	s := &Service{cfg: cfg, log: log.WithField("component", "gps"), now: time.Now}
	s.last.Store(&Snapshot{
		Enabled:  cfg.Enable,
		Source:   cfg.source(),
		GPSDAddr: cfg.GPSDAddr,
		Device:   cfg.Device,
		Baud:     cfg.Baud,
	})
	return s
}

// stream is one way of obtaining receiver output.
type stream struct {
	describe logrus.Fields
	open     func(ctx context.Context) (io.ReadCloser, error)
	consume  func(ctx context.Context, r io.Reader) error
}

// Start begins reading in the background. It is a no-op when disabled or
// already running.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enable {
		return nil
	}
	var st stream
	switch s.cfg.source() {
	case "nmea":
		st = s.nmeaStream()
	case "gpsd":
		st = s.gpsdStream()
	default:
		return fmt.Errorf("gps: unknown source %q", s.cfg.Source)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, st)
	}()
	return nil
}

func (s *Service) nmeaStream() stream {
	state := &nmeaState{device: s.cfg.Device, baud: s.cfg.Baud}
	return stream{
		describe: logrus.Fields{"source": "nmea", "device": s.cfg.Device, "baud": s.cfg.Baud},
		open: func(context.Context) (io.ReadCloser, error) {
			dev := s.cfg.Device
			if dev == "" {
				if dev = autoDetectDevice(); dev == "" {
					return nil, errors.New("no /dev/ttyACM* or /dev/ttyUSB* receiver found")
				}
			}
			state.device = dev
			return openSerial(dev, s.cfg.Baud)
		},
		consume: func(ctx context.Context, r io.Reader) error { return s.consumeNMEA(ctx, r, state) },
	}
}

func (s *Service) gpsdStream() stream {
	state := newGPSDState(s.cfg.GPSDAddr)
	return stream{
		describe: logrus.Fields{"source": "gpsd", "addr": s.cfg.GPSDAddr},
		open: func(ctx context.Context) (io.ReadCloser, error) {
			conn, err := dialGPSD(ctx, s.cfg.GPSDAddr)
			if err != nil {
				return nil, err
			}
			if err := gpsdWatch(conn); err != nil {
				conn.Close()
				return nil, fmt.Errorf("gpsd watch: %w", err)
			}
			return conn, nil
		},
		consume: func(ctx context.Context, r io.Reader) error { return s.consumeGPSD(ctx, r, state) },
	}
}

// run opens and consumes st until ctx is done.
func (s *Service) run(ctx context.Context, st stream) {
	log := s.log.WithFields(st.describe)
	log.Info("gps enabled")
	delay := reconnectMin
	for ctx.Err() == nil {
		rc, err := st.open(ctx)
		if err == nil {
			delay = reconnectMin
			s.setCurrent(rc)
			err = st.consume(ctx, rc)
			s.setCurrent(nil)
			rc.Close()
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Debug("gps stream ended")
		}
		s.setError(fmt.Sprintf("gps: %v", err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(2*delay, reconnectMax)
	}
}

func (s *Service) setCurrent(c io.Closer) {
	s.mu.Lock()
	s.current = c
	s.mu.Unlock()
}

// scanLines feeds trimmed, non-empty lines of r to fn until r ends or ctx
// is done. It returns io.EOF on a clean end of input.
func scanLines(ctx context.Context, r io.Reader, maxLine int, fn func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(maxLine, 4096)), maxLine)
	for ctx.Err() == nil {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return err
			}
			return io.EOF
		}
		if line := strings.TrimSpace(sc.Text()); line != "" {
			fn(line)
		}
	}
	return ctx.Err()
}

// consumeNMEA reads sentences until r fails or ctx is done.
func (s *Service) consumeNMEA(ctx context.Context, r io.Reader, st *nmeaState) error {
	// Sentences are at most 82 bytes; leave room for vendor chatter.
	return scanLines(ctx, r, 4096, func(line string) {
		if line[0] != '$' {
			return
		}
		sent, err := parseNMEASentence(line)
		if err != nil {
			s.setError(err.Error())
			return
		}
		if st.apply(s.now().UTC(), sent) {
			s.publish(st.snapshot())
		}
	})
}

// consumeGPSD reads JSON reports until r fails or ctx is done.
func (s *Service) consumeGPSD(ctx context.Context, r io.Reader, st *gpsdState) error {
	return scanLines(ctx, r, 256<<10, func(line string) {
		updated, err := st.applyLine(s.now().UTC(), line)
		if err != nil {
			s.setError(err.Error())
			return
		}
		if updated {
			s.publish(st.snapshot())
		}
	})
}

func (s *Service) publish(snap Snapshot) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	// The last error stays visible until another one replaces it.
	snap.LastError = s.rawSnapshot().LastError
	s.last.Store(&snap)
}

func (s *Service) setError(msg string) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	cur := s.rawSnapshot()
	if cur.LastError == msg {
		return
	}
	s.log.Warn(msg)
	cur.LastError = msg
	s.last.Store(&cur)
}

// Close stops reading and waits for the reader to exit.
func (s *Service) Close() {
	s.mu.Lock()
	cancel, current := s.cancel, s.current
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	// Serial reads block in the kernel; closing the file unblocks them.
	if current != nil {
		current.Close()
	}
	s.wg.Wait()
}

// Snapshot returns the latest state with fix age and staleness evaluated
// against the service clock.
func (s *Service) Snapshot() Snapshot {
	snap := s.rawSnapshot()
	if snap.Valid && !snap.LastFix.IsZero() {
		age := s.now().Sub(snap.LastFix)
		snap.FixAgeSec = age.Seconds()
		snap.FixStale = age > s.cfg.MaxFixAge
	}
	return snap
}

func (s *Service) rawSnapshot() Snapshot {
	return *s.last.Load()
}

func autoDetectDevice() string {
	for _, prefix := range []string{"/dev/ttyACM", "/dev/ttyUSB"} {
		for i := range 10 {
			if p := fmt.Sprintf("%s%d", prefix, i); fileExists(p) {
				return p
			}
		}
	}
	return ""
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
