package httpserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"lv-risk/internal/alteration"
	"lv-risk/internal/httputil"
	"lv-risk/internal/marketdata"
)

type CandleSource interface {
	Candle(req alteration.CandleRequest, now time.Time) (marketdata.Candle, bool, error)
}

type CandleHandler struct {
	src             CandleSource
	defaultInterval time.Duration
	now             func() time.Time
}

func NewCandleHandler(src CandleSource, defaultInterval time.Duration) *CandleHandler {
	if defaultInterval < time.Second {
		defaultInterval = time.Minute
	}
	return &CandleHandler{src: src, defaultInterval: defaultInterval, now: time.Now}
}

// Synthetic answers 204 when the client should keep using the real feed.
func (h *CandleHandler) Synthetic(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pair := strings.TrimSpace(q.Get("pair"))
	if pair == "" {
		httputil.WriteError(w, http.StatusBadRequest, "pair is required")
		return
	}
	interval := h.defaultInterval
	if raw := strings.TrimSpace(q.Get("interval")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < time.Second {
			httputil.WriteError(w, http.StatusBadRequest, "invalid interval")
			return
		}
		interval = d
	}
	req := alteration.CandleRequest{
		AccountID:   strings.TrimSpace(q.Get("account_id")),
		AccountType: strings.TrimSpace(q.Get("account_type")),
		Pair:        pair,
		Interval:    interval,
	}
	if raw := strings.TrimSpace(q.Get("prev_close")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid prev_close")
			return
		}
		req.PrevClose = &v
	}
	c, ok, err := h.src.Candle(req, h.now())
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}
