package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"lv-risk/internal/httputil"
	"lv-risk/internal/ledger"
	"lv-risk/internal/risk"

	"github.com/go-chi/chi/v5"
)

type AccountStater interface {
	State(ctx context.Context, accountID string, now time.Time) (risk.AccountState, error)
}

type AccountHandler struct {
	svc AccountStater
	now func() time.Time
}

func NewAccountHandler(svc AccountStater) *AccountHandler {
	return &AccountHandler{svc: svc, now: time.Now}
}

type accountStateResponse struct {
	AccountID     string         `json:"account_id"`
	Balance       string         `json:"balance"`
	Equity        string         `json:"equity"`
	Margin        string         `json:"margin"`
	FreeMargin    string         `json:"free_margin"`
	UnrealizedPnL string         `json:"unrealized_pnl"`
	MarginLevel   string         `json:"margin_level"`
	Action        string         `json:"action"`
	OpenCount     int            `json:"open_count"`
	Pending       []string       `json:"pending,omitempty"`
	Positions     []positionView `json:"positions"`
}

type positionView struct {
	ID             string `json:"id"`
	Pair           string `json:"pair"`
	Side           string `json:"side"`
	Lot            string `json:"lot"`
	EntryPrice     string `json:"entry_price"`
	Price          string `json:"price,omitempty"`
	Bid            string `json:"bid,omitempty"`
	Ask            string `json:"ask,omitempty"`
	Profit         string `json:"profit,omitempty"`
	Margin         string `json:"margin"`
	RequiredMargin string `json:"required_margin,omitempty"`
}

func viewPositions(marks []risk.PositionMark) []positionView {
	out := make([]positionView, 0, len(marks))
	for _, m := range marks {
		v := positionView{
			ID:         m.Position.ID,
			Pair:       m.Position.Pair,
			Side:       string(m.Position.Side),
			Lot:        m.Position.Lot.String(),
			EntryPrice: m.Position.EntryPrice.String(),
			Margin:     m.Position.Margin.StringFixed(2),
		}
		if m.Priced {
			v.Price = m.Price.String()
			v.Profit = m.Profit.Formatted
			v.RequiredMargin = m.RequiredMargin.StringFixed(2)
		}
		if m.Quoted {
			v.Bid = m.Quote.Sell.String()
			v.Ask = m.Quote.Buy.String()
		}
		out = append(out, v)
	}
	return out
}

// State reports equity and margin level as the supervisor sees them now.
func (h *AccountHandler) State(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.State(r.Context(), chi.URLParam(r, "id"), h.now())
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "account not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	b := st.Balances
	httputil.WriteJSON(w, http.StatusOK, accountStateResponse{
		AccountID:     st.Account.ID,
		Balance:       b.Balance.StringFixed(2),
		Equity:        b.Equity.StringFixed(2),
		Margin:        b.TotalMargin.StringFixed(2),
		FreeMargin:    b.FreeMargin.StringFixed(2),
		UnrealizedPnL: b.UnrealizedPnL.StringFixed(2),
		MarginLevel:   st.Check.Level.StringFixed(2),
		Action:        string(st.Check.Action),
		OpenCount:     len(st.Open),
		Pending:       b.Pending,
		Positions:     viewPositions(st.Marks()),
	})
}
