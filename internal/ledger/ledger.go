package ledger

import (
	"sort"
	"sync"
	"time"
)

// Ledger is the in-memory portfolio store. All mutation runs under a
// single writer lock: only EA-sourced messages
// (ApplyTradeResult/ApplyAccountStatus) may mutate state, and reads
// (Positions, ClosedTrades, Summary) take the read side of the same
// lock so they never observe a half-applied update.
type Ledger struct {
	mu       sync.RWMutex
	open     map[int64]*Position
	closed   []Position // append-only
	summary  AccountSummary
}

// New builds an empty Ledger.
func New() *Ledger {
	return &Ledger{
		open: make(map[int64]*Position),
	}
}

// ApplyTradeResult mutates the ledger from an EA TRADE_RESULT message.
// An OPEN result inserts or updates the live position; a CLOSED result
// moves it to the append-only closed history.
func (l *Ledger) ApplyTradeResult(tr TradeResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch tr.Status {
	case PositionClosed:
		pos := Position{
			Ticket:     tr.Ticket,
			Symbol:     tr.Symbol,
			Side:       tr.Side,
			EntryPrice: tr.EntryPrice,
			Volume:     tr.Volume,
			StopLoss:   tr.StopLoss,
			TakeProfit: tr.TakeProfit,
			OpenedAt:   tr.OpenedAt,
			ClosedAt:   tr.ClosedAt,
			ExitPrice:  tr.ExitPrice,
			PnL:        tr.PnL,
			Status:     PositionClosed,
			SignalID:   tr.SignalID,
		}
		delete(l.open, tr.Ticket)
		l.closed = append(l.closed, pos)
	default:
		l.open[tr.Ticket] = &Position{
			Ticket:     tr.Ticket,
			Symbol:     tr.Symbol,
			Side:       tr.Side,
			EntryPrice: tr.EntryPrice,
			Volume:     tr.Volume,
			StopLoss:   tr.StopLoss,
			TakeProfit: tr.TakeProfit,
			OpenedAt:   tr.OpenedAt,
			Status:     PositionOpen,
			SignalID:   tr.SignalID,
		}
	}
}

// ApplyAccountStatus replaces the derived account summary from an EA
// ACCOUNT_STATUS message.
func (l *Ledger) ApplyAccountStatus(as AccountStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.summary = AccountSummary{
		Balance:       as.Balance,
		Equity:        as.Equity,
		Margin:        as.Margin,
		FreeMargin:    as.FreeMargin,
		MarginLevel:   as.MarginLevel,
		OpenPositions: as.OpenPositions,
		UpdatedAt:     as.ReportedAt,
	}
}

// Positions returns a snapshot of all currently open positions.
func (l *Ledger) Positions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.open))
	for _, p := range l.open {
		out = append(out, *p)
	}
	return out
}

// PositionsBySymbol returns the open positions for one symbol.
func (l *Ledger) PositionsBySymbol(symbol string) []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Position
	for _, p := range l.open {
		if p.Symbol == symbol {
			out = append(out, *p)
		}
	}
	return out
}

// ClosedTrades returns a snapshot of the append-only closed-trade
// history, oldest first.
func (l *Ledger) ClosedTrades() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, len(l.closed))
	copy(out, l.closed)
	return out
}

// Summary returns the account summary: the EA's latest raw balance
// fields plus day/week/month PnL, max drawdown, win rate, and profit
// factor, all recomputed from the closed-trade history on every call.
func (l *Ledger) Summary() AccountSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := l.summary
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekStart := dayStart.AddDate(0, 0, -int(now.Weekday()))
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	s.DayPnL = l.realizedPnLSinceLocked(dayStart)
	s.WeekPnL = l.realizedPnLSinceLocked(weekStart)
	s.MonthPnL = l.realizedPnLSinceLocked(monthStart)
	s.MaxDrawdown = l.maxDrawdownLocked()
	s.WinRate, s.ProfitFactor = l.winRateAndProfitFactorLocked()
	return s
}

// RealizedPnLSince sums PnL of closed trades closed at or after since.
func (l *Ledger) RealizedPnLSince(since time.Time) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.realizedPnLSinceLocked(since)
}

func (l *Ledger) realizedPnLSinceLocked(since time.Time) float64 {
	var total float64
	for _, t := range l.closed {
		if !t.ClosedAt.Before(since) {
			total += t.PnL
		}
	}
	return total
}

// maxDrawdownLocked walks the closed trades in close order and returns
// the largest peak-to-trough decline of the cumulative realized PnL
// curve. Callers must hold l.mu.
func (l *Ledger) maxDrawdownLocked() float64 {
	if len(l.closed) == 0 {
		return 0
	}
	trades := make([]Position, len(l.closed))
	copy(trades, l.closed)
	sort.Slice(trades, func(i, j int) bool { return trades[i].ClosedAt.Before(trades[j].ClosedAt) })

	var cumulative, peak, maxDD float64
	for _, t := range trades {
		cumulative += t.PnL
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// winRateAndProfitFactorLocked returns the fraction of closed trades
// with positive PnL and the ratio of gross profit to gross loss.
// Callers must hold l.mu.
func (l *Ledger) winRateAndProfitFactorLocked() (winRate, profitFactor float64) {
	if len(l.closed) == 0 {
		return 0, 0
	}
	var wins int
	var grossWin, grossLoss float64
	for _, t := range l.closed {
		switch {
		case t.PnL > 0:
			wins++
			grossWin += t.PnL
		case t.PnL < 0:
			grossLoss += -t.PnL
		}
	}
	winRate = float64(wins) / float64(len(l.closed))
	if grossLoss > 0 {
		profitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		profitFactor = grossWin
	}
	return winRate, profitFactor
}
