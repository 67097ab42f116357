package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Service   string `json:"service"`
	Module    string `json:"module,omitempty"`
	Version   string `json:"version,omitempty"`
	Revision  string `json:"revision,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	BuiltAt   string `json:"built_at,omitempty"`
	GoVersion string `json:"go_version"`
}

type AboutResponse struct {
	BuildInfo
	NowUTC string `json:"now_utc"`
}

var buildInfo = sync.OnceValue(func() BuildInfo {
	info := BuildInfo{Service: serviceName, GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.Module, info.Version = bi.Main.Path, bi.Main.Version
	vcs := map[string]string{}
	for _, s := range bi.Settings {
		vcs[s.Key] = s.Value
	}
	info.Revision = vcs["vcs.revision"]
	info.Modified = vcs["vcs.modified"] == "true"
	info.BuiltAt = vcs["vcs.time"]
	return info
})

func aboutHandler(d Deps) http.HandlerFunc {
	return getOnly(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, AboutResponse{BuildInfo: buildInfo(), NowUTC: d.now().Format(time.RFC3339Nano)})
	})
}
