package admin

import (
	"bufio"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"runtime"
	"strconv"

	"github.com/getmockd/imposterd/pkg/httputil"
	"github.com/getmockd/imposterd/pkg/imposter"
)

type link struct {
	Href string `json:"href"`
}

// handleIndex handles GET /.
func (a *API) handleIndex(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, map[string]any{
		"_links": map[string]link{
			"imposters": {Href: "/imposters"},
			"config":    {Href: "/config"},
			"logs":      {Href: "/logs"},
		},
	})
}

// handleHealth handles GET /health.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, map[string]any{
		"status":    "ok",
		"uptime":    a.Uptime(),
		"imposters": len(a.manager.List()),
	})
}

// handleConfig handles GET /config.
func (a *API) handleConfig(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	cwd, _ := os.Getwd()

	httputil.WriteOK(w, map[string]any{
		"version": a.version,
		"options": a.settings,
		"process": map[string]any{
			"goVersion":    runtime.Version(),
			"architecture": runtime.GOARCH,
			"platform":     runtime.GOOS,
			"heapAlloc":    mem.HeapAlloc,
			"sys":          mem.Sys,
			"goroutines":   runtime.NumGoroutine(),
			"uptime":       a.Uptime(),
			"cwd":          cwd,
		},
	})
}

// handleLogs handles GET /logs?startIndex=&endIndex=. Both bounds are
// inclusive line indexes; out-of-range bounds are clamped.
func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	lines, err := a.readLogLines()
	if err != nil {
		a.writeError(w, err, "read logs")
		return
	}

	start, err := queryIndex(r, "startIndex", 0)
	if err != nil {
		a.writeError(w, err, "read logs")
		return
	}
	end, err := queryIndex(r, "endIndex", len(lines)-1)
	if err != nil {
		a.writeError(w, err, "read logs")
		return
	}
	start = max(start, 0)
	end = min(end, len(lines)-1)

	out := make([]any, 0)
	for i := start; i <= end; i++ {
		out = append(out, lines[i])
	}
	httputil.WriteOK(w, map[string]any{"logs": out})
}

func queryIndex(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, imposter.Configurationf("%s must be an integer", key)
	}
	return n, nil
}

func (a *API) readLogLines() ([]any, error) {
	if a.logFile == "" {
		return nil, nil
	}
	f, err := os.Open(a.logFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		text := scanner.Text()
		if a.jsonLogs {
			var rec map[string]any
			if err := json.Unmarshal([]byte(text), &rec); err == nil {
				lines = append(lines, rec)
				continue
			}
		}
		lines = append(lines, text)
	}
	return lines, scanner.Err()
}
