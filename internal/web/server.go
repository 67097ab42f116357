package web

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flarm-ng/internal/dispatch"
	"flarm-ng/internal/traffic"
)

// Deps are the runtime components the web API reads from. Nil members
// disable their endpoints.
type Deps struct {
	Status  *Status
	Stats   *dispatch.Stats
	Traffic *traffic.Store
	Logs    *LogBuffer
	Now     func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

type TrafficResponse struct {
	NowUTC  string           `json:"now_utc"`
	Count   int              `json:"count"`
	Targets []traffic.Target `json:"targets"`
}

func Handler(d Deps) http.Handler {
	if d.Status == nil {
		d.Status = NewStatus()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", getOnly(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Status.Snapshot(d.now()))
	}))

	if d.Stats != nil {
		// Diagnostics carry their own JSON shape (per-frequency timing plus counters).
		mux.HandleFunc("/api/flarm", getOnly(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, d.Stats)
		}))
	}

	if d.Traffic != nil {
		mux.HandleFunc("/api/traffic", getOnly(func(w http.ResponseWriter, r *http.Request) {
			now := d.now()
			targets := d.Traffic.Snapshot(now)
			if s := strings.TrimSpace(r.URL.Query().Get("limit")); s != "" {
				v, err := strconv.Atoi(s)
				if err != nil || v < 1 {
					http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
					return
				}
				if v < len(targets) {
					targets = targets[:v]
				}
			}
			if targets == nil {
				targets = []traffic.Target{}
			}
			writeJSON(w, TrafficResponse{
				NowUTC:  now.Format(time.RFC3339Nano),
				Count:   len(targets),
				Targets: targets,
			})
		}))
	}

	if d.Logs != nil {
		mux.Handle("/api/logs", d.Logs.Handler())
	}

	mux.HandleFunc("/api/about", aboutHandler(d))

	mux.HandleFunc("/", getOnly(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		snap := d.Status.Snapshot(d.now())
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>flarm-ng</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>flarm-ng</h1>")
		_, _ = fmt.Fprintf(w, "<p>API: <a href=\"/api/status\">status</a> <a href=\"/api/flarm\">flarm</a> <a href=\"/api/traffic\">traffic</a> <a href=\"/api/logs?format=text\">logs</a></p>")
		_, _ = fmt.Fprintf(w, "<pre>mode=%s\ngdl90_dest=%s\ntx_interval=%s\ntx_frames_total=%d\nlast_tx_utc=%s</pre>",
			html.EscapeString(snap.Mode), html.EscapeString(snap.GDL90Dest), html.EscapeString(snap.TxInterval), snap.TxFramesTotal, snap.LastTxUTC,
		)
		_, _ = fmt.Fprintf(w, "</body></html>")
	}))

	return mux
}

func Serve(ctx context.Context, listenAddr string, d Deps) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
