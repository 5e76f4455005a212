package eod

// tradeLine matches the JSON format written by the tradelog package.
type tradeLine struct {
	Time       string
	Symbol     string
	Side       string // "BUY" or "SELL"
	Qty        int
	Price      float64
	OrderID    string
	Reason     string
	Confidence float64
}

// aggRow aggregates one symbol's trades for the daily summary.
type aggRow struct {
	Symbol      string
	Entries     int
	ConfSum     float64
	BuyQty      int
	BuyValue    float64
	SellQty     int
	SellValue   float64
	TakeProfits int
	StopLosses  int
	RealizedPnL float64
}
