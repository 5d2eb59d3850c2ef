package marketdata

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// MockAdapter is a deterministic, seedable Adapter used by tests and by
// operator tooling that needs reproducible bars without a broker
// connection.
type MockAdapter struct {
	mu     sync.Mutex
	rng    *rand.Rand
	base   map[string]float64
	drift  map[string]float64
}

// NewMockAdapter creates a deterministic adapter seeded by seed.
func NewMockAdapter(seed int64) *MockAdapter {
	return &MockAdapter{
		rng:  rand.New(rand.NewSource(seed)),
		base: map[string]float64{"EURUSD": 1.0850, "GBPUSD": 1.2650, "USDJPY": 149.50, "AUDUSD": 0.6550},
		drift: map[string]float64{"EURUSD": 0.00005, "GBPUSD": -0.00003, "USDJPY": 0.0020, "AUDUSD": 0.00002},
	}
}

func tfDuration(tf Timeframe) time.Duration {
	switch tf {
	case M15:
		return 15 * time.Minute
	case H1:
		return time.Hour
	case H4:
		return 4 * time.Hour
	case D1:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// Historical synthesizes a deterministic, strictly-monotonic bar window
// ending at end (or now) using a seeded random walk with a per-symbol
// drift. Every call draws from the adapter's shared generator, so two
// adapters built with the same seed return identical prices for the same
// sequence of calls, while a repeated call on one adapter returns a new
// path.
func (m *MockAdapter) Historical(ctx context.Context, symbol string, tf Timeframe, count int, end time.Time) (Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if end.IsZero() {
		end = time.Now().UTC()
	}
	step := tfDuration(tf)
	price := m.base[symbol]
	if price == 0 {
		price = 1.0
	}
	drift := m.drift[symbol]

	bars := make(Window, count)
	start := end.Add(-time.Duration(count) * step)
	for i := 0; i < count; i++ {
		ts := start.Add(time.Duration(i+1) * step)
		o := price
		noise := (m.rng.Float64() - 0.5) * 0.002 * price
		c := o + drift + noise
		hi := math.Max(o, c) + m.rng.Float64()*0.0005*price
		lo := math.Min(o, c) - m.rng.Float64()*0.0005*price
		vol := 1000 + m.rng.Float64()*500
		bars[i] = Bar{Timestamp: ts, Open: o, High: hi, Low: lo, Close: c, Volume: vol}
		price = c
	}
	return bars, nil
}

// Current returns a synthetic quote derived from the last simulated bar.
func (m *MockAdapter) Current(ctx context.Context, symbol string) (Quote, error) {
	w, err := m.Historical(ctx, symbol, H1, 1, time.Time{})
	if err != nil {
		return Quote{}, err
	}
	last := w[len(w)-1]
	spread := last.Close * 0.0001
	return Quote{Bid: last.Close - spread/2, Ask: last.Close + spread/2, Spread: spread, Ts: last.Timestamp}, nil
}

// Subscribe emits one synthetic tick per symbol every interval until ctx
// is cancelled.
func (m *MockAdapter) Subscribe(ctx context.Context, symbols []string) (<-chan Tick, error) {
	out := make(chan Tick, len(symbols)*4)
	go func() {
		defer close(out)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, s := range symbols {
					q, err := m.Current(ctx, s)
					if err != nil {
						continue
					}
					select {
					case out <- Tick{Symbol: s, Price: q.Bid, Ts: q.Ts}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}
