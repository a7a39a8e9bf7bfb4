package health

import (
	"context"
	"crypto/subtle"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"lv-risk/internal/httputil"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EngineStats reports live engine counters for diagnostics.
type EngineStats func() map[string]int

type Handler struct {
	db          Pinger
	startedAt   time.Time
	httpAddr    string
	internalTok string
	stats       EngineStats
}

func NewHandler(db Pinger, startedAt time.Time, httpAddr, internalToken string, stats EngineStats) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{
		db:          db,
		startedAt:   start,
		httpAddr:    strings.TrimSpace(httpAddr),
		internalTok: strings.TrimSpace(internalToken),
		stats:       stats,
	}
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UptimeSec int64  `json:"uptime_sec"`
	Uptime    string `json:"uptime"`
}

type databaseStats struct {
	Reachable  bool   `json:"reachable"`
	PingMs     int64  `json:"ping_ms"`
	Error      string `json:"error,omitempty"`
	CheckedAt  string `json:"checked_at"`
	TimeoutSec int    `json:"timeout_sec"`
}

type readinessResponse struct {
	liveResponse
	Database databaseStats `json:"database"`
}

type fullResponse struct {
	readinessResponse
	HTTPAddr   string         `json:"http_addr"`
	PID        int            `json:"pid"`
	Hostname   string         `json:"hostname"`
	GoVersion  string         `json:"go_version"`
	Goroutines int            `json:"goroutines"`
	HeapAlloc  uint64         `json:"heap_alloc_bytes"`
	NumGC      uint32         `json:"num_gc"`
	Engine     map[string]int `json:"engine,omitempty"`
}

func (h *Handler) live(now time.Time) liveResponse {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		uptime = 0
	}
	return liveResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
	}
}

func (h *Handler) collectDB(ctx context.Context) databaseStats {
	const timeoutSec = 1
	out := databaseStats{TimeoutSec: timeoutSec}
	if h.db == nil {
		out.Error = "database is not configured"
		out.CheckedAt = time.Now().UTC().Format(time.RFC3339)
		return out
	}
	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, timeoutSec*time.Second)
	err := h.db.Ping(pingCtx)
	cancel()
	out.PingMs = time.Since(start).Milliseconds()
	out.CheckedAt = time.Now().UTC().Format(time.RFC3339)
	if err != nil {
		out.Error = err.Error()
	} else {
		out.Reachable = true
	}
	return out
}

func (h *Handler) ready(r *http.Request) (readinessResponse, int) {
	resp := readinessResponse{liveResponse: h.live(time.Now().UTC()), Database: h.collectDB(r.Context())}
	if !resp.Database.Reachable {
		resp.Status = "degraded"
		return resp, http.StatusServiceUnavailable
	}
	return resp, http.StatusOK
}

// Live does not touch the database.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.live(time.Now().UTC()))
}

// Ready returns 503 when the database is unreachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	resp, status := h.ready(r)
	httputil.WriteJSON(w, status, resp)
}

// Full adds process and engine diagnostics and requires X-Internal-Token.
func (h *Handler) Full(w http.ResponseWriter, r *http.Request) {
	if !secureTokenEqual(strings.TrimSpace(r.Header.Get("X-Internal-Token")), h.internalTok) || h.internalTok == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "invalid internal token")
		return
	}
	ready, status := h.ready(r)
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	host, _ := os.Hostname()
	resp := fullResponse{
		readinessResponse: ready,
		HTTPAddr:          h.httpAddr,
		PID:               os.Getpid(),
		Hostname:          host,
		GoVersion:         runtime.Version(),
		Goroutines:        runtime.NumGoroutine(),
		HeapAlloc:         mem.HeapAlloc,
		NumGC:             mem.NumGC,
	}
	if h.stats != nil {
		resp.Engine = h.stats()
	}
	httputil.WriteJSON(w, status, resp)
}

func secureTokenEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
