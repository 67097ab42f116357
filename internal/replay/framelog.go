package replay

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"flarm-ng/internal/dispatch"
)

// Log format: line-oriented text.
//
// - Blank lines ignored.
// - Lines starting with '#' ignored.
// - Line "START" resets the origin (next record time is relative to 0 again).
// - Data lines are: <t_ns>,<unix_ns>,<freq_hz>,<rssi>,<hex>
//   t_ns is nanoseconds since START (monotonic) and drives replay pacing.
//   unix_ns is the wall-clock reception time; FLARM keys depend on it, so
//   replayed frames keep their original time.

type Record struct {
	At          time.Duration
	Received    time.Time
	FrequencyHz uint32
	RSSI        float64
	Frame       []byte
}

// RawFrame converts a data record back into the receive-queue form.
func (r Record) RawFrame() dispatch.RawFrame {
	return dispatch.RawFrame{
		Data:        append([]byte(nil), r.Frame...),
		FrequencyHz: r.FrequencyHz,
		At:          r.Received,
		RSSI:        r.RSSI,
	}
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 4*1024), 64*1024)

	recs := make([]Record, 0, 1024)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{})
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

func parseLine(line string) (Record, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 5 {
		return Record{}, fmt.Errorf("invalid replay line (want 5 fields, got %d): %q", len(parts), line)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return Record{}, fmt.Errorf("invalid replay line (empty field): %q", line)
		}
	}

	tsNs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid replay timestamp %q: %w", parts[0], err)
	}
	if tsNs < 0 {
		return Record{}, fmt.Errorf("invalid replay timestamp (negative): %d", tsNs)
	}
	unixNs, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid replay wall time %q: %w", parts[1], err)
	}
	freq, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return Record{}, fmt.Errorf("invalid replay frequency %q: %w", parts[2], err)
	}
	rssi, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid replay rssi %q: %w", parts[3], err)
	}
	b, err := hex.DecodeString(strings.ReplaceAll(parts[4], " ", ""))
	if err != nil {
		return Record{}, fmt.Errorf("invalid replay hex payload: %w", err)
	}
	if len(b) == 0 {
		return Record{}, fmt.Errorf("invalid replay payload (empty)")
	}

	return Record{
		At:          time.Duration(tsNs),
		Received:    time.Unix(0, unixNs).UTC(),
		FrequencyHz: uint32(freq),
		RSSI:        rssi,
		Frame:       b,
	}, nil
}

type Writer struct {
	f      *os.File
	w      *bufio.Writer
	start  time.Time
	closed bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 16*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: bw, start: time.Now()}, nil
}

// WriteFrame appends one received frame. now paces replay; f.At is stored as
// the wall-clock reception time.
func (ww *Writer) WriteFrame(now time.Time, f dispatch.RawFrame) error {
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	if len(f.Data) == 0 {
		return errors.New("frame is empty")
	}

	d := now.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	rx := f.At
	if rx.IsZero() {
		rx = now
	}
	_, err := fmt.Fprintf(ww.w, "%d,%d,%d,%s,%s\n",
		d.Nanoseconds(), rx.UnixNano(), f.FrequencyHz,
		strconv.FormatFloat(f.RSSI, 'f', -1, 64), hex.EncodeToString(f.Data))
	return err
}

func (ww *Writer) Flush() error {
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}

type Sleeper interface {
	Sleep(d time.Duration)
}

// ContextSleeper sleeps until d elapses or ctx is done.
type ContextSleeper struct {
	Ctx context.Context
}

func (s ContextSleeper) Sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.Ctx.Done():
	case <-t.C:
	}
}

// Play replays records with their relative timing.
//
// cb is invoked for each data record. START markers reset the origin.
// speedMultiplier: 1.0 = real time, 2.0 = 2x speed (half waits), 0.5 = half speed.
// A non-nil error from cb stops playback and is returned.
func Play(records []Record, speedMultiplier float64, loop bool, sleeper Sleeper, cb func(Record) error) error {
	if speedMultiplier <= 0 {
		return fmt.Errorf("speedMultiplier must be > 0")
	}
	if sleeper == nil {
		sleeper = ContextSleeper{Ctx: context.Background()}
	}
	if cb == nil {
		return errors.New("callback is nil")
	}
	if len(records) == 0 {
		return errors.New("no records")
	}

	for {
		var origin time.Duration
		var lastAt time.Duration
		var haveLast bool

		for _, r := range records {
			if r.Frame == nil {
				origin = r.At
				lastAt = 0
				haveLast = false
				continue
			}

			at := r.At - origin
			if at < 0 {
				at = 0
			}
			if haveLast {
				wait := at - lastAt
				if wait < 0 {
					wait = 0
				}
				wait = time.Duration(float64(wait) / speedMultiplier)
				if wait > 0 {
					sleeper.Sleep(wait)
				}
			}

			if err := cb(r); err != nil {
				return err
			}

			lastAt = at
			haveLast = true
		}

		if !loop {
			return nil
		}
	}
}

// PlayFile reads path and replays it into enqueue until done or ctx ends.
func PlayFile(ctx context.Context, path string, speed float64, loop bool, enqueue func(dispatch.RawFrame) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	recs, err := NewReader(f).ReadAll()
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	err = Play(recs, speed, loop, ContextSleeper{Ctx: ctx}, func(r Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		enqueue(r.RawFrame())
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
