package types

type Side string

type CloseReason string

type AlterationMode string

type ProfitStatus string

type MarginAction string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

const (
	CloseReasonNone       CloseReason = "none"
	CloseReasonStopLoss   CloseReason = "stop_loss"
	CloseReasonTakeProfit CloseReason = "take_profit"
	CloseReasonMarginCall CloseReason = "margin_call"
	CloseReasonExpire     CloseReason = "expire"
	CloseReasonManual     CloseReason = "manual"
)

const (
	AlterationSingleTrade     AlterationMode = "single_trade"
	AlterationPairAccountType AlterationMode = "pair_all_accounts_of_type"
	AlterationAccountPair     AlterationMode = "single_account_pair"
)

const (
	ProfitStatusProfit  ProfitStatus = "profit"
	ProfitStatusLoss    ProfitStatus = "loss"
	ProfitStatusNeutral ProfitStatus = "neutral"
)

const (
	MarginActionNone       MarginAction = "none"
	MarginActionMarginCall MarginAction = "margin_call"
	MarginActionStopOut    MarginAction = "stop_out"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

func (m AlterationMode) Valid() bool {
	switch m {
	case AlterationSingleTrade, AlterationPairAccountType, AlterationAccountPair:
		return true
	}
	return false
}
