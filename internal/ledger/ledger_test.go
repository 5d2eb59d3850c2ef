package ledger

import (
	"testing"
	"time"
)

func TestApplyTradeResultOpenThenClose(t *testing.T) {
	l := New()
	opened := time.Now().Add(-time.Hour)
	l.ApplyTradeResult(TradeResult{
		Ticket: 1, Symbol: "EURUSD", Side: "BUY",
		EntryPrice: 1.1000, Volume: 0.1, OpenedAt: opened, Status: PositionOpen,
	})

	positions := l.Positions()
	if len(positions) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(positions))
	}

	closedAt := time.Now()
	l.ApplyTradeResult(TradeResult{
		Ticket: 1, Symbol: "EURUSD", Side: "BUY",
		EntryPrice: 1.1000, ExitPrice: 1.1050, Volume: 0.1, PnL: 50,
		OpenedAt: opened, ClosedAt: closedAt, Status: PositionClosed,
	})

	if len(l.Positions()) != 0 {
		t.Fatalf("expected 0 open positions after close, got %d", len(l.Positions()))
	}
	closed := l.ClosedTrades()
	if len(closed) != 1 {
		t.Fatalf("expected 1 closed trade, got %d", len(closed))
	}
	if closed[0].PnL != 50 {
		t.Fatalf("expected pnl 50, got %v", closed[0].PnL)
	}
}

func TestApplyAccountStatus(t *testing.T) {
	l := New()
	now := time.Now()
	l.ApplyAccountStatus(AccountStatus{
		Balance: 10000, Equity: 10200, Margin: 500, FreeMargin: 9700,
		MarginLevel: 2040, OpenPositions: 2, ReportedAt: now,
	})
	summary := l.Summary()
	if summary.Equity != 10200 || summary.OpenPositions != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestPositionsBySymbol(t *testing.T) {
	l := New()
	l.ApplyTradeResult(TradeResult{Ticket: 1, Symbol: "EURUSD", Status: PositionOpen})
	l.ApplyTradeResult(TradeResult{Ticket: 2, Symbol: "GBPUSD", Status: PositionOpen})

	eur := l.PositionsBySymbol("EURUSD")
	if len(eur) != 1 || eur[0].Ticket != 1 {
		t.Fatalf("unexpected EURUSD positions: %+v", eur)
	}
}

func TestRealizedPnLSince(t *testing.T) {
	l := New()
	now := time.Now()
	l.ApplyTradeResult(TradeResult{Ticket: 1, PnL: 100, ClosedAt: now.Add(-2 * time.Hour), Status: PositionClosed})
	l.ApplyTradeResult(TradeResult{Ticket: 2, PnL: 50, ClosedAt: now.Add(-10 * time.Minute), Status: PositionClosed})

	total := l.RealizedPnLSince(now.Add(-time.Hour))
	if total != 50 {
		t.Fatalf("expected 50, got %v", total)
	}
}
