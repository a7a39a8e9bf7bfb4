package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"lv-risk/internal/alteration"
	"lv-risk/internal/httputil"
	"lv-risk/internal/model"

	"github.com/go-chi/chi/v5"
)

type AlterationService interface {
	Create(ctx context.Context, a model.Alteration) (model.Alteration, error)
	Delete(ctx context.Context, id string) error
	List() []model.Alteration
}

type AlterationHandler struct {
	svc AlterationService
	now func() time.Time
}

func NewAlterationHandler(svc AlterationService) *AlterationHandler {
	return &AlterationHandler{svc: svc, now: time.Now}
}

type alterationView struct {
	model.Alteration
	EndsAt       int64  `json:"ends_at"`
	CurrentPrice string `json:"current_price,omitempty"`
	Progress     string `json:"progress,omitempty"`
}

func (h *AlterationHandler) view(a model.Alteration) alterationView {
	v := alterationView{Alteration: a, EndsAt: a.EndsAt().Unix()}
	if p := alteration.Interpolate(a, h.now()); !p.Completed {
		v.CurrentPrice = p.Price.String()
		v.Progress = p.Fraction.StringFixed(4)
	}
	return v
}

func (h *AlterationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.Alteration
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.ID = ""
	created, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeAlterationError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, h.view(created))
}

func (h *AlterationHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.svc.List()
	out := make([]alterationView, 0, len(items))
	for _, a := range items {
		out = append(out, h.view(a))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *AlterationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeAlterationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeAlterationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alteration.ErrInvalidAlteration):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, alteration.ErrDuplicateScope):
		httputil.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, alteration.ErrProtected):
		httputil.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, alteration.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, err.Error())
	default:
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
