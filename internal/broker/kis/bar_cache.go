package kis

import (
	"fmt"
	"sort"
	"sync"

	"pullback-trading-bot/internal/types"
)

// barCache manages per-symbol 1-minute bar buffers. Access is serialized per
// cache; appends deduplicate by timestamp with last-write-wins so a revised
// bar from the feed replaces the stale one.
type barCache struct {
	buffers map[string]*barBuffer
	mu      sync.RWMutex
}

type barBuffer struct {
	bars    []types.Bar
	maxSize int
}

func newBarCache() *barCache {
	return &barCache{
		buffers: make(map[string]*barBuffer),
	}
}

func (bc *barCache) initBuffer(symbol string, maxSize int) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	bc.buffers[symbol] = &barBuffer{
		bars:    make([]types.Bar, 0, maxSize),
		maxSize: maxSize,
	}
}

// addBar inserts a bar, replacing any existing bar with the same timestamp.
func (bc *barCache) addBar(symbol string, bar types.Bar) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	buf, exists := bc.buffers[symbol]
	if !exists {
		return
	}

	n := len(buf.bars)
	if n > 0 && bar.Ts <= buf.bars[n-1].Ts {
		// Out-of-order or revised bar: last write wins on timestamp match,
		// otherwise insert in order.
		i := sort.Search(n, func(j int) bool { return buf.bars[j].Ts >= bar.Ts })
		if i < n && buf.bars[i].Ts == bar.Ts {
			buf.bars[i] = bar
			return
		}
		buf.bars = append(buf.bars, types.Bar{})
		copy(buf.bars[i+1:], buf.bars[i:])
		buf.bars[i] = bar
	} else {
		buf.bars = append(buf.bars, bar)
	}

	if len(buf.bars) > buf.maxSize {
		buf.bars = buf.bars[len(buf.bars)-buf.maxSize:]
	}
}

// getRecent returns a copy of the last n bars so readers never observe a
// buffer mid-mutation.
func (bc *barCache) getRecent(symbol string, n int) ([]types.Bar, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	buf, exists := bc.buffers[symbol]
	if !exists {
		return nil, fmt.Errorf("no bar data for symbol %s", symbol)
	}
	if len(buf.bars) == 0 {
		return nil, fmt.Errorf("no bars available for %s", symbol)
	}

	bars := buf.bars
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	out := make([]types.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

// firstBar returns the earliest cached bar for a symbol.
func (bc *barCache) firstBar(symbol string) (types.Bar, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	buf, exists := bc.buffers[symbol]
	if !exists || len(buf.bars) == 0 {
		return types.Bar{}, false
	}
	return buf.bars[0], true
}

func (bc *barCache) clear() {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	for symbol := range bc.buffers {
		bc.buffers[symbol].bars = make([]types.Bar, 0, bc.buffers[symbol].maxSize)
	}
}
