package exits

// Reason identifies why a position was closed.
type Reason string

const (
	TakeProfit  Reason = "TAKE_PROFIT"
	StopLoss    Reason = "STOP_LOSS"
	Liquidation Reason = "EOD_LIQUIDATION"
	Technical   Reason = "TECHNICAL"
	Unexecuted  Reason = "UNEXECUTED"
)

// Position is the subset of position state exit rules need.
type Position struct {
	EntryPrice float64
	TakeProfit float64
	StopLoss   float64
}

// MarketState is one observation the checker evaluates against. Live checks
// carry only Price; replay checks carry the full bar bounds.
type MarketState struct {
	Price            float64
	High, Low, Close float64
}

// Exit is a triggered exit with the price the rule dictates.
type Exit struct {
	Reason Reason
	Price  float64
}

// Checker decides whether a position should be closed given one market
// observation. Take-profit is always evaluated before stop-loss.
//
// TickChecker and BarBoundsChecker deliberately diverge: live trading sees a
// single current price while replay sees a whole bar's high/low. The
// divergence is the accepted source of small live-versus-replay result
// differences, kept visible here instead of buried in shared code.
type Checker interface {
	Check(pos Position, m MarketState) (Exit, bool)
}

// TickChecker evaluates exits against the current live price.
type TickChecker struct{}

func (TickChecker) Check(pos Position, m MarketState) (Exit, bool) {
	if m.Price >= pos.TakeProfit {
		return Exit{Reason: TakeProfit, Price: m.Price}, true
	}
	if m.Price <= pos.StopLoss {
		return Exit{Reason: StopLoss, Price: m.Price}, true
	}
	return Exit{}, false
}

// BarBoundsChecker evaluates exits against a completed bar's high/low. The
// exit fills at the rule's target price, not the bar close.
type BarBoundsChecker struct{}

func (BarBoundsChecker) Check(pos Position, m MarketState) (Exit, bool) {
	if m.High >= pos.TakeProfit {
		return Exit{Reason: TakeProfit, Price: pos.TakeProfit}, true
	}
	if m.Low <= pos.StopLoss {
		return Exit{Reason: StopLoss, Price: pos.StopLoss}, true
	}
	return Exit{}, false
}
