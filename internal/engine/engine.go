// Package engine wires the per-symbol prediction pipeline: fetch bars,
// engineer features, run the ensemble, construct a candidate signal per
// timeframe, and pass the set through the multi-timeframe validator. It
// is the scheduler.Task the tick loop drives.
package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"genx-signal-engine/internal/bulletin"
	"genx-signal-engine/internal/eatransport"
	"genx-signal-engine/internal/ensemble"
	"genx-signal-engine/internal/errs"
	"genx-signal-engine/internal/features"
	"genx-signal-engine/internal/ledger"
	"genx-signal-engine/internal/marketdata"
	"genx-signal-engine/internal/model"
	"genx-signal-engine/internal/riskparams"
	"genx-signal-engine/internal/signal"
	"genx-signal-engine/internal/validator"
)

// Broadcaster pushes a validated signal out to every connected EA. Satisfied
// by *eatransport.Hub.
type Broadcaster interface {
	Broadcast(env eatransport.Envelope)
}

// Engine owns the combiner, the feature engineer, and the live set of
// active signals per symbol.
type Engine struct {
	market     marketdata.Adapter
	combiner   *ensemble.Combiner
	engineer   *features.Engineer
	board      *bulletin.Board
	ledger     *ledger.Ledger
	risk       *riskparams.Store
	hub        Broadcaster
	log        zerolog.Logger
	onUpdate   func([]*signal.Signal)
	timeframes []marketdata.Timeframe

	mu       sync.RWMutex
	bySymbol map[string][]*signal.Signal
}

// New builds an Engine. onUpdate, if non-nil, is called after every
// board write with the full current active-signal set (used to mirror
// state onto the status API's websocket hub). hub, if non-nil, receives
// every newly validated composite signal for broadcast to connected EAs.
func New(market marketdata.Adapter, combiner *ensemble.Combiner, eng *features.Engineer, board *bulletin.Board, led *ledger.Ledger, risk *riskparams.Store, hub Broadcaster, timeframes []marketdata.Timeframe, onUpdate func([]*signal.Signal), log zerolog.Logger) *Engine {
	return &Engine{
		market:     market,
		combiner:   combiner,
		engineer:   eng,
		board:      board,
		ledger:     led,
		risk:       risk,
		hub:        hub,
		timeframes: timeframes,
		onUpdate:   onUpdate,
		log:        log,
		bySymbol:   make(map[string][]*signal.Signal),
	}
}

// ActiveSignals implements statusapi.SignalSource.
func (e *Engine) ActiveSignals() []*signal.Signal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*signal.Signal
	for _, sigs := range e.bySymbol {
		out = append(out, sigs...)
	}
	return out
}

// Tick is the scheduler.Task run once per symbol per interval.
func (e *Engine) Tick(ctx context.Context, symbol string) error {
	policy := e.risk.Current()

	var candidates []validator.TimeframeSignal
	var lastSnap signal.MarketSnapshot
	for _, tf := range e.timeframes {
		bars, err := e.market.Historical(ctx, symbol, tf, e.engineer.MinBars(), time.Time{})
		if err != nil {
			return errs.Wrap(errs.TransientIO, "engine: fetch historical bars", err)
		}
		if err := bars.ValidateSeries(); err != nil {
			return err
		}

		rows := e.engineer.Generate(bars)
		if len(rows) == 0 {
			continue
		}
		last := rows[len(rows)-1]

		pred, err := e.combiner.Predict(ensemble.BaseInput{
			IndicatorVector: last.IndicatorVector,
			Sequence:        model.FlattenSequence(last.Sequence),
			IndicatorWindow: model.FlattenIndicatorWindow(last.IndicatorWindow),
		})
		if err != nil {
			return err
		}

		snap := snapshotFromBars(bars)
		lastSnap = snap
		equity := e.ledger.Summary().Equity
		if equity <= 0 {
			equity = 10000
		}

		riskPolicy := signal.RiskPolicy{
			MaxRiskPerTrade:    policy.MaxRiskPerTrade,
			MaxVolumePerTrade:  policy.MaxVolumePerTrade,
			MinConfidence:      policy.MinConfidence,
			SignalExpiry:       policy.SignalExpiry,
			BrokerMinIncrement: policy.BrokerMinIncrement,
		}

		sig, err := signal.New(symbol, string(tf), pred.Probs, equity, snap, riskPolicy, time.Now())
		if err != nil {
			if errs.KindOf(err) == errs.PolicyReject {
				continue
			}
			return err
		}
		candidates = append(candidates, validator.TimeframeSignal{Timeframe: string(tf), Signal: sig})
	}

	_ = lastSnap
	if len(candidates) == 0 {
		return nil
	}

	vp := validator.Policy{
		RequiredAgreement:    policy.RequiredAgreement,
		DedupeWindow:         policy.DedupeWindow,
		MaxConcurrentSignals: policy.MaxConcurrentSignals,
	}
	composite := validator.Confluence(candidates, vp)
	if composite == nil {
		return nil
	}

	e.mu.Lock()
	existing := e.bySymbol[symbol]
	now := time.Now()
	if validator.IsDuplicate(composite, existing, vp, now) {
		e.mu.Unlock()
		return nil
	}

	// Cap is enforced across every symbol's active set, not just this
	// symbol's: gather the full system-wide set, with the new candidate
	// added to this symbol's existing entries, rank it once, then
	// re-bucket the survivors back by symbol.
	systemWide := e.allExceptLocked(symbol)
	systemWide = append(systemWide, append(append([]*signal.Signal{}, existing...), composite)...)
	kept, dropped := validator.EnforceCap(systemWide, vp)

	e.bySymbol = make(map[string][]*signal.Signal, len(e.bySymbol))
	for _, s := range kept {
		e.bySymbol[s.Symbol] = append(e.bySymbol[s.Symbol], s)
	}
	for _, d := range dropped {
		e.log.Info().Str("symbol", d.Symbol).Str("signal_id", d.ID).Msg("signal dropped by concurrency cap")
	}
	all := e.allLocked()
	survived := containsSignal(kept, composite)
	e.mu.Unlock()

	if err := e.board.Update(now, all); err != nil {
		e.log.Warn().Err(err).Msg("bulletin board update failed")
	}
	if survived && e.hub != nil {
		if err := e.broadcastSignal(composite, now); err != nil {
			e.log.Warn().Err(err).Msg("EA broadcast failed")
		}
	}
	if e.onUpdate != nil {
		e.onUpdate(all)
	}
	return nil
}

// broadcastSignal pushes composite's EA wire payload to every connected
// expert advisor.
func (e *Engine) broadcastSignal(composite *signal.Signal, now time.Time) error {
	payload, err := json.Marshal(composite.ToEAPayload())
	if err != nil {
		return errs.Wrap(errs.DataQuality, "engine: marshal EA payload", err)
	}
	e.hub.Broadcast(eatransport.Envelope{
		Type:      eatransport.TypeSignal,
		Data:      payload,
		Timestamp: now,
	})
	return nil
}

func containsSignal(set []*signal.Signal, target *signal.Signal) bool {
	for _, s := range set {
		if s == target {
			return true
		}
	}
	return false
}

// allLocked flattens every symbol's active set. Callers must hold e.mu.
func (e *Engine) allLocked() []*signal.Signal {
	var out []*signal.Signal
	for _, sigs := range e.bySymbol {
		out = append(out, sigs...)
	}
	return out
}

// allExceptLocked flattens every symbol's active set except symbol, whose
// entries the caller supplies separately (its existing entries plus the
// in-flight candidate).
// Callers must hold e.mu.
func (e *Engine) allExceptLocked(symbol string) []*signal.Signal {
	var out []*signal.Signal
	for sym, sigs := range e.bySymbol {
		if sym == symbol {
			continue
		}
		out = append(out, sigs...)
	}
	return out
}

// snapshotFromBars derives the market snapshot the signal constructor
// needs from the tail of a bar window, classifying trend/volatility from
// SMA alignment and the ATR-vs-price ratio.
func snapshotFromBars(bars marketdata.Window) signal.MarketSnapshot {
	last := bars[len(bars)-1]
	atr := features.ATR(bars, 14)
	sma20 := features.SMA(bars, 20)
	sma50 := features.SMA(bars, 50)
	rsi := features.RSI(bars, 14)
	macd := features.MACDLine(bars)
	macdSig := features.MACDSignal(bars)

	cond := classify(last.Close, sma20, sma50, atr)

	return signal.MarketSnapshot{
		CurrentPrice: last.Close,
		ATR14:        atr,
		Condition:    cond,
		SMA20:        sma20,
		SMA50:        sma50,
		RSI14:        rsi,
		MACD:         macd,
		MACDSignal:   macdSig,
	}
}

func classify(price, sma20, sma50, atr float64) signal.MarketCondition {
	atrRatio := 0.0
	if price > 0 {
		atrRatio = atr / price
	}
	if atrRatio > 0.015 {
		return signal.HighVolatility
	}
	switch {
	case price > sma20 && sma20 > sma50:
		return signal.Uptrend
	case price < sma20 && sma20 < sma50:
		return signal.Downtrend
	case sma20 == sma50:
		return signal.Sideways
	default:
		return signal.Mixed
	}
}
