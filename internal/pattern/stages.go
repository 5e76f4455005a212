package pattern

// The four pattern stages. Indices refer to positions in the aggregated bar
// sequence handed to the Segmenter. Stages are built fresh on every Segment
// call and never mutated afterward; every field a downstream filter may need
// is populated here, so no consumer reaches back into raw bars.

type Uptrend struct {
	StartIdx, EndIdx int
	CandleCount      int
	PriceGainPct     float64 // first open to highest close, percent
	HighPrice        float64 // highest close in the run
	MaxVolume        int64   // peak single-bar volume in the run
	AvgVolume        float64
}

type Decline struct {
	StartIdx, EndIdx int
	CandleCount      int
	DeclinePct       float64 // uptrend high to decline trough, percent
	AvgVolumeRatio   float64 // average volume vs uptrend peak
}

type Support struct {
	StartIdx, EndIdx int
	CandleCount      int
	SupportPrice     float64 // mean close of the run
	AvgVolume        float64
	AvgBody          float64
	AvgVolumeRatio   float64 // average volume vs uptrend peak
	PriceVolatility  float64 // std/mean of run closes
}

type Breakout struct {
	Idx                    int
	Open, High, Low, Close float64
	Volume                 int64
	BodySize               float64
	VolumeRatioVsPrev      float64 // (vol - prev vol) / prev vol
	BodyIncreaseVsSupport  float64 // (body - support avg body) / support avg body
}

// Stages is the complete, chronologically ordered segmentation result:
// Uptrend ends where Decline begins, Decline where Support begins, and the
// Breakout candle immediately follows Support.
type Stages struct {
	Uptrend  Uptrend
	Decline  Decline
	Support  Support
	Breakout Breakout
}
