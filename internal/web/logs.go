package web

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultLogTail = 200
	maxLogTail     = 5000
)

// LogEntry is one captured log record.
type LogEntry struct {
	Time    time.Time      `json:"time"`
	Level   logrus.Level   `json:"level"`
	Message string         `json:"msg"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func (e LogEntry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", e.Time.UTC().Format(time.RFC3339), strings.ToUpper(e.Level.String()), e.Message)
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	return b.String()
}

// LogBuffer keeps the newest log entries for /api/logs. Install it with
// Hook on the process logger.
type LogBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
	dropped uint64
}

func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = 2000
	}
	return &LogBuffer{entries: make([]LogEntry, size)}
}

func (b *LogBuffer) add(e LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		b.dropped++
	}
	b.entries[b.next] = e
	b.next++
	if b.next == len(b.entries) {
		b.next, b.full = 0, true
	}
}

// Snapshot returns up to tail of the newest entries at or above minLevel
// (logrus levels grow more verbose upward), oldest first, plus the number of
// entries evicted so far.
func (b *LogBuffer) Snapshot(tail int, minLevel logrus.Level) ([]LogEntry, uint64) {
	if tail <= 0 {
		tail = defaultLogTail
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.next
	if b.full {
		n = len(b.entries)
	}
	var out []LogEntry
	for i := 0; i < n && len(out) < tail; i++ {
		// Walk newest to oldest.
		e := b.entries[(b.next-1-i+len(b.entries))%len(b.entries)]
		if e.Level <= minLevel {
			out = append(out, e)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, b.dropped
}

type LogsResponse struct {
	NowUTC  string     `json:"now_utc"`
	Dropped uint64     `json:"dropped"`
	Entries []LogEntry `json:"entries"`
}

// Handler serves GET /api/logs?tail=N&level=info&format=text.
func (b *LogBuffer) Handler() http.Handler {
	return getOnly(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		tail := defaultLogTail
		if s := strings.TrimSpace(q.Get("tail")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > maxLogTail {
				http.Error(w, fmt.Sprintf("tail must be an integer in [1,%d]", maxLogTail), http.StatusBadRequest)
				return
			}
			tail = v
		}
		level := logrus.TraceLevel
		if s := strings.TrimSpace(q.Get("level")); s != "" {
			l, err := logrus.ParseLevel(s)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			level = l
		}

		entries, dropped := b.Snapshot(tail, level)
		if strings.EqualFold(q.Get("format"), "text") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			if dropped > 0 {
				fmt.Fprintf(w, "[dropped=%d]\n", dropped)
			}
			for _, e := range entries {
				fmt.Fprintln(w, e.String())
			}
			return
		}
		if entries == nil {
			entries = []LogEntry{}
		}
		writeJSON(w, LogsResponse{NowUTC: time.Now().UTC().Format(time.RFC3339Nano), Dropped: dropped, Entries: entries})
	})
}

// Hook returns a logrus hook that records every entry in the buffer.
func (b *LogBuffer) Hook() logrus.Hook { return logHook{b} }

type logHook struct{ buf *LogBuffer }

func (logHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h logHook) Fire(e *logrus.Entry) error {
	var fields map[string]any
	if len(e.Data) > 0 {
		fields = make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			// error values marshal as {} otherwise.
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			fields[k] = v
		}
	}
	h.buf.add(LogEntry{Time: e.Time, Level: e.Level, Message: e.Message, Fields: fields})
	return nil
}
