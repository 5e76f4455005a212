package filters

import "sync"

// StatsSink receives filter-chain counter events. Injected into the chain so
// production can run with the no-op sink while backtest analysis records
// everything; there is no process-wide singleton.
type StatsSink interface {
	Checked()
	Blocked(filter, symbol, reason string)
}

// NopSink discards all events. The production default.
type NopSink struct{}

func (NopSink) Checked()               {}
func (NopSink) Blocked(_, _, _ string) {}

// BlockDetail records one exclusion for post-hoc analysis.
type BlockDetail struct {
	Filter string `json:"filter"`
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// Recorder counts checks and per-filter blocks. Safe for concurrent use; the
// chain may be driven from parallel replay workers.
type Recorder struct {
	mu      sync.Mutex
	checked int
	blocked map[string]int
	details []BlockDetail
}

func NewRecorder() *Recorder {
	return &Recorder{blocked: make(map[string]int)}
}

func (r *Recorder) Checked() {
	r.mu.Lock()
	r.checked++
	r.mu.Unlock()
}

func (r *Recorder) Blocked(filter, symbol, reason string) {
	r.mu.Lock()
	r.blocked[filter]++
	r.details = append(r.details, BlockDetail{Filter: filter, Symbol: symbol, Reason: reason})
	r.mu.Unlock()
}

// Stats is a point-in-time copy of the recorder's counters.
type Stats struct {
	Checked int            `json:"checked"`
	Blocked map[string]int `json:"blocked"`
	Details []BlockDetail  `json:"details,omitempty"`
}

func (r *Recorder) Snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	blocked := make(map[string]int, len(r.blocked))
	for k, v := range r.blocked {
		blocked[k] = v
	}
	details := make([]BlockDetail, len(r.details))
	copy(details, r.details)
	return Stats{Checked: r.checked, Blocked: blocked, Details: details}
}
