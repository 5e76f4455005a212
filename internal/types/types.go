package types

// Bar is a single interval's OHLCV. Ts marks the interval start (unix seconds).
type Bar struct {
	Ts                     int64
	Open, High, Low, Close float64
	Vol                    int64
}

// Valid reports whether the OHLC invariant holds.
func (b Bar) Valid() bool {
	if b.High < b.Low || b.Vol < 0 {
		return false
	}
	lo, hi := b.Open, b.Close
	if lo > hi {
		lo, hi = hi, lo
	}
	return b.Low <= lo && hi <= b.High && b.Open > 0 && b.Close > 0
}

// Body returns the absolute open-close distance.
func (b Bar) Body() float64 {
	if b.Close >= b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

// Bullish reports whether the bar closed above its open.
func (b Bar) Bullish() bool { return b.Close > b.Open }

// ClosePosition is the normalized location of the close within the high-low
// range. A zero-range bar yields the neutral 0.5.
func (b Bar) ClosePosition() float64 {
	if b.High == b.Low {
		return 0.5
	}
	return (b.Close - b.Low) / (b.High - b.Low)
}

// AggBar is a Bar folded from finer-granularity bars sharing one floor-aligned
// interval. SourceCount below the interval width is a data-quality warning,
// not an error.
type AggBar struct {
	Bar
	SourceCount int
}

// Intent is a buy/sell request handed to the order-execution collaborator.
type Intent struct {
	Symbol    string
	Side      string
	PriceHint float64
	Qty       int
	Tag       string
}

type OrderReq struct {
	Symbol, Side string
	Qty          int
	Price        float64
	Tag          string
}

type OrderResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StepResult summarizes one live evaluation cycle for an instrument.
type StepResult struct {
	Symbol     string      `json:"symbol"`
	Action     string      `json:"action"`
	Confidence float64     `json:"confidence"`
	Price      float64     `json:"price"`
	Time       int64       `json:"time"`
	Orders     []OrderResp `json:"orders"`
	Reason     string      `json:"reason"`
}
