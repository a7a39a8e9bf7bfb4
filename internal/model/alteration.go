package model

import (
	"strings"
	"time"

	"lv-risk/internal/types"

	"github.com/shopspring/decimal"
)

// TutorialReason marks alterations that the normal delete path must refuse.
const TutorialReason = "tutorial"

type Alteration struct {
	ID              string               `json:"id"`
	Mode            types.AlterationMode `json:"mode"`
	TradeRef        string               `json:"trade_ref,omitempty"`
	Pair            string               `json:"pair,omitempty"`
	AccountType     string               `json:"account_type,omitempty"`
	AccountID       string               `json:"account_id,omitempty"`
	StartPrice      decimal.Decimal      `json:"start_price"`
	TargetPrice     decimal.Decimal      `json:"target_price"`
	DurationSec     int64                `json:"duration_sec"`
	StartedAt       int64                `json:"started_at"`
	CloseOnComplete bool                 `json:"close_on_complete"`
	ShowOnChart     bool                 `json:"show_on_chart"`
	Reason          string               `json:"reason"`
	CreatedAt       time.Time            `json:"created_at"`
}

// ScopeKey identifies what an alteration overrides. Two active alterations
// never share a key.
type ScopeKey string

func TradeScope(ref string) ScopeKey {
	return ScopeKey("trade:" + strings.TrimSpace(ref))
}

func AccountPairScope(accountID, pair string) ScopeKey {
	return ScopeKey("account:" + strings.TrimSpace(accountID) + "|pair:" + NormalizePair(pair))
}

func PairTypeScope(pair, accountType string) ScopeKey {
	return ScopeKey("pair:" + NormalizePair(pair) + "|type:" + strings.ToLower(strings.TrimSpace(accountType)))
}

func (a Alteration) ScopeKey() ScopeKey {
	switch a.Mode {
	case types.AlterationSingleTrade:
		return TradeScope(a.TradeRef)
	case types.AlterationAccountPair:
		return AccountPairScope(a.AccountID, a.Pair)
	case types.AlterationPairAccountType:
		return PairTypeScope(a.Pair, a.AccountType)
	}
	return ""
}

func (a Alteration) Duration() time.Duration {
	return time.Duration(a.DurationSec) * time.Second
}

func (a Alteration) StartTime() time.Time {
	return time.Unix(a.StartedAt, 0)
}

// EndsAt is the instant the alteration completes.
func (a Alteration) EndsAt() time.Time {
	return a.StartTime().Add(a.Duration())
}

func (a Alteration) Protected() bool {
	return strings.EqualFold(strings.TrimSpace(a.Reason), TutorialReason)
}

// Covers reports whether the position falls inside the alteration's scope.
func (a Alteration) Covers(p Position) bool {
	switch a.Mode {
	case types.AlterationSingleTrade:
		return a.TradeRef != "" && a.TradeRef == p.Reference
	case types.AlterationAccountPair:
		return a.AccountID == p.AccountID && NormalizePair(a.Pair) == NormalizePair(p.Pair)
	case types.AlterationPairAccountType:
		return NormalizePair(a.Pair) == NormalizePair(p.Pair) && strings.EqualFold(a.AccountType, p.AccountType)
	}
	return false
}
