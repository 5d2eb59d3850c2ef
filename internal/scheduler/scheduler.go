// Package scheduler runs the per-symbol tick loop: a bounded worker pool
// ticks each symbol on its own cadence, enforces a per-tick deadline,
// applies back-pressure when a symbol's previous tick is still running,
// and trips a per-symbol kill switch after too many consecutive
// failures.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is one unit of per-symbol, per-tick work.
type Task func(ctx context.Context, symbol string) error

// Config tunes the scheduler.
type Config struct {
	Interval          time.Duration
	TickDeadline      time.Duration
	MaxWorkers        int
	FailureThreshold  int // consecutive failures before kill switch trips
	CooldownPeriod    time.Duration
}

// symbolState tracks one symbol's running/failure state.
type symbolState struct {
	mu                sync.Mutex
	running           bool
	consecutiveFails  int
	killed            bool
	killedAt          time.Time
}

// Scheduler owns one ticking goroutine per registered symbol plus a
// bounded worker pool that executes ticks.
type Scheduler struct {
	cfg     Config
	task    Task
	log     zerolog.Logger
	sem     chan struct{}
	mu      sync.Mutex
	states  map[string]*symbolState
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a Scheduler. task is invoked once per symbol per tick,
// subject to the configured deadline.
func New(cfg Config, task Task, log zerolog.Logger) *Scheduler {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	return &Scheduler{
		cfg:    cfg,
		task:   task,
		log:    log,
		sem:    make(chan struct{}, cfg.MaxWorkers),
		states: make(map[string]*symbolState),
	}
}

// Start begins ticking every registered symbol. Call Register before
// Start, or concurrently — newly registered symbols begin ticking on
// their next interval.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
}

// Stop cancels all running ticks and waits for in-flight work to drain.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Register starts a ticking goroutine for symbol. It is idempotent: a
// symbol already registered is left alone.
func (s *Scheduler) Register(ctx context.Context, symbol string) {
	s.mu.Lock()
	if _, exists := s.states[symbol]; exists {
		s.mu.Unlock()
		return
	}
	st := &symbolState{}
	s.states[symbol] = st
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runSymbol(ctx, symbol, st)
}

// KillSwitchTripped reports whether symbol's kill switch is currently
// engaged.
func (s *Scheduler) KillSwitchTripped(symbol string) bool {
	s.mu.Lock()
	st, ok := s.states[symbol]
	s.mu.Unlock()
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.killed
}

// Tick forces an immediate, out-of-band tick for the given symbols,
// bypassing the interval ticker and the kill switch/back-pressure
// checks a scheduled tick would apply. It blocks until every symbol's
// task has run (each still bounded by TickDeadline) and returns a
// symbol-keyed map with one entry per requested symbol, nil for those
// that succeeded. Grounded on
// trading_engine.py's force_signal_generation (original_source), the
// operator-triggered "generate now" escape hatch alongside the regular
// ticking loop.
func (s *Scheduler) Tick(ctx context.Context, symbols ...string) map[string]error {
	results := make(map[string]error, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, sym := range symbols {
		sym := sym
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case s.sem <- struct{}{}:
			case <-ctx.Done():
				mu.Lock()
				results[sym] = ctx.Err()
				mu.Unlock()
				return
			}
			defer func() { <-s.sem }()

			deadline := s.cfg.TickDeadline
			if deadline <= 0 {
				deadline = s.cfg.Interval
			}
			tickCtx, cancel := context.WithTimeout(ctx, deadline)
			defer cancel()

			err := s.task(tickCtx, sym)
			mu.Lock()
			results[sym] = err
			mu.Unlock()
			if err != nil {
				s.log.Warn().Str("symbol", sym).Err(err).Msg("forced tick failed")
			}
		}()
	}
	wg.Wait()
	return results
}

// Reset clears symbol's failure count and kill switch, for manual
// recovery or test harnesses.
func (s *Scheduler) Reset(symbol string) {
	s.mu.Lock()
	st, ok := s.states[symbol]
	s.mu.Unlock()
	if !ok {
		return
	}
	st.mu.Lock()
	st.consecutiveFails = 0
	st.killed = false
	st.mu.Unlock()
}

func (s *Scheduler) runSymbol(ctx context.Context, symbol string, st *symbolState) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, symbol, st)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, symbol string, st *symbolState) {
	st.mu.Lock()
	if st.killed {
		if time.Since(st.killedAt) < s.cfg.CooldownPeriod {
			st.mu.Unlock()
			return
		}
		st.killed = false
		st.consecutiveFails = 0
	}
	if st.running {
		st.mu.Unlock()
		s.log.Warn().Str("symbol", symbol).Msg("tick skipped, previous tick still running")
		return
	}
	st.running = true
	st.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		st.mu.Lock()
		st.running = false
		st.mu.Unlock()
		return
	}

	s.wg.Add(1)
	go func() {
		defer func() {
			<-s.sem
			st.mu.Lock()
			st.running = false
			st.mu.Unlock()
			s.wg.Done()
		}()

		deadline := s.cfg.TickDeadline
		if deadline <= 0 {
			deadline = s.cfg.Interval
		}
		tickCtx, cancel := context.WithTimeout(ctx, deadline)
		defer cancel()

		err := s.task(tickCtx, symbol)

		st.mu.Lock()
		if err != nil {
			st.consecutiveFails++
			if st.consecutiveFails >= s.cfg.FailureThreshold && !st.killed {
				st.killed = true
				st.killedAt = time.Now()
				s.log.Error().Str("symbol", symbol).Int("fails", st.consecutiveFails).
					Msg("kill switch tripped for symbol")
			}
		} else {
			st.consecutiveFails = 0
		}
		st.mu.Unlock()

		if err != nil {
			s.log.Warn().Str("symbol", symbol).Err(err).Msg("tick failed")
		}
	}()
}
