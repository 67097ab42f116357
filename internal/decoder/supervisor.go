package decoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// State is the lifecycle phase of a supervised demodulator.
type State string

const (
	StateStopped    State = "stopped"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateExited     State = "exited"
	StateRestarting State = "restarting"
)

const (
	defaultBackoffInitial = 250 * time.Millisecond
	defaultBackoffMax     = 10 * time.Second
	defaultTailLines      = 100
	defaultMaxLineBytes   = 16 << 10

	// A run that lasted this long resets the restart backoff.
	stableRun = 30 * time.Second
	// Grace period between SIGINT and SIGKILL on shutdown.
	stopGrace = 2 * time.Second
)

// SupervisorConfig describes the external demodulator process, typically an
// SDR receiver that serves decoded FLARM frames on the radio address.
type SupervisorConfig struct {
	Name    string
	Command string
	Args    []string
	Env     []string // extra KEY=VALUE entries

	Restart        bool
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// TailLines bounds each of the stdout and stderr tails in Snapshot.
	TailLines    int
	MaxLineBytes int

	Log logrus.FieldLogger
}

// Supervisor runs a demodulator and restarts it with exponential backoff.
type Supervisor struct {
	cfg SupervisorConfig
	log logrus.FieldLogger

	stdout *tailBuffer
	stderr *tailBuffer

	mu        sync.RWMutex
	started   bool
	closed    bool
	state     State
	pid       int
	restarts  int
	startedAt time.Time
	lastErr   string
	cancel    context.CancelFunc
	done      chan struct{}
}

// Snapshot is the JSON status of the demodulator.
type Snapshot struct {
	Name      string     `json:"name"`
	State     State      `json:"state"`
	Running   bool       `json:"running"`
	PID       int        `json:"pid,omitempty"`
	Restarts  int        `json:"restarts"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Stdout    []string   `json:"stdout_tail,omitempty"`
	Stderr    []string   `json:"stderr_tail,omitempty"`
}

func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.Command = strings.TrimSpace(cfg.Command)
	switch {
	case cfg.Name == "":
		return nil, errors.New("demodulator name is required")
	case cfg.Command == "":
		return nil, errors.New("demodulator command is required")
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = defaultBackoffInitial
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = max(defaultBackoffMax, cfg.BackoffInitial)
	}
	if cfg.TailLines <= 0 {
		cfg.TailLines = defaultTailLines
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = defaultMaxLineBytes
	}
	log := cfg.Log
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	return &Supervisor{
		cfg:    cfg,
		log:    log.WithField("process", cfg.Name),
		stdout: newTailBuffer(cfg.TailLines, cfg.MaxLineBytes),
		stderr: newTailBuffer(cfg.TailLines, cfg.MaxLineBytes),
		state:  StateStopped,
	}, nil
}

// Start launches the supervision loop. It may be called once.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("supervisor is closed")
	}
	if s.started {
		return errors.New("supervisor already started")
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.state = StateStarting
	go s.loop(ctx)
	return nil
}

// Close stops the process and waits for the loop to finish.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Supervisor) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		Name:      s.cfg.Name,
		State:     s.state,
		Running:   s.state == StateRunning && s.pid != 0,
		PID:       s.pid,
		Restarts:  s.restarts,
		LastError: s.lastErr,
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		snap.StartedAt = &t
	}
	s.mu.RUnlock()

	snap.Stdout = s.stdout.lines()
	snap.Stderr = s.stderr.lines()
	return snap
}

func (s *Supervisor) loop(ctx context.Context) {
	defer close(s.done)
	defer s.transition(StateStopped, nil)

	backoff := s.cfg.BackoffInitial
	for ctx.Err() == nil {
		began := time.Now()
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log.WithError(err).Warn("demodulator exited")
		} else {
			s.log.Info("demodulator exited")
		}
		s.transition(StateExited, err)
		if !s.cfg.Restart {
			// Leave the exited state visible.
			<-ctx.Done()
			return
		}

		if time.Since(began) >= stableRun {
			backoff = s.cfg.BackoffInitial
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, s.cfg.BackoffMax)

		s.mu.Lock()
		s.restarts++
		s.mu.Unlock()
		s.transition(StateRestarting, nil)
	}
}

func (s *Supervisor) runOnce(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.cfg.Command, s.cfg.Args...)
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = stopGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.cfg.Command, err)
	}

	s.mu.Lock()
	s.pid = cmd.Process.Pid
	s.startedAt = time.Now()
	s.state = StateRunning
	s.lastErr = ""
	s.mu.Unlock()
	s.log.WithField("pid", cmd.Process.Pid).Info("demodulator started")

	var g errgroup.Group
	g.Go(func() error { return pump(stdout, s.stdout, nil) })
	g.Go(func() error {
		return pump(stderr, s.stderr, func(line string) { s.log.Debug(line) })
	})
	if err := g.Wait(); err != nil {
		s.log.WithError(err).Debug("output reader stopped")
	}
	err = cmd.Wait()

	s.mu.Lock()
	s.pid = 0
	s.mu.Unlock()
	return err
}

func (s *Supervisor) transition(st State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	if err != nil {
		s.lastErr = err.Error()
	}
}

// pump copies lines from r into t until EOF.
func pump(r io.Reader, t *tailBuffer, echo func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), t.maxLineBytes)
	for sc.Scan() {
		line := sc.Text()
		t.add(line)
		if echo != nil {
			echo(line)
		}
	}
	if err := sc.Err(); err != nil {
		t.add("[truncated] " + err.Error())
		// Keep the pipe drained so the child never blocks on a full buffer.
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}
