// Package ledger implements the portfolio ledger: a single-writer-lock
// store mutated only by EA messages (TRADE_RESULT, ACCOUNT_STATUS), with
// an append-only closed-trade history and a derived account summary.
package ledger

import "time"

// PositionStatus mirrors the EA-reported lifecycle of one position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// Position is one open or recently closed trade as tracked by the
// ledger, keyed by the broker-assigned ticket.
type Position struct {
	Ticket      int64
	Symbol      string
	Side        string
	EntryPrice  float64
	Volume      float64
	StopLoss    float64
	TakeProfit  float64
	OpenedAt    time.Time
	ClosedAt    time.Time
	ExitPrice   float64
	PnL         float64
	Status      PositionStatus
	SignalID    string
}

// AccountSummary is the derived, read-only view of account state the
// ledger maintains. Balance/Equity/Margin/FreeMargin/MarginLevel are the
// EA's latest raw ACCOUNT_STATUS report; everything else is recomputed
// on demand from the closed-trade history each time Summary is called.
type AccountSummary struct {
	Balance       float64
	Equity        float64
	Margin        float64
	FreeMargin    float64
	MarginLevel   float64
	OpenPositions int
	UpdatedAt     time.Time

	DayPnL       float64
	WeekPnL      float64
	MonthPnL     float64
	MaxDrawdown  float64
	WinRate      float64
	ProfitFactor float64
}

// TradeResult is the EA-reported outcome of one trade, used to mutate
// the ledger via a TRADE_RESULT message.
type TradeResult struct {
	Ticket     int64
	Symbol     string
	Side       string
	EntryPrice float64
	ExitPrice  float64
	Volume     float64
	PnL        float64
	SignalID   string
	OpenedAt   time.Time
	ClosedAt   time.Time
	StopLoss   float64
	TakeProfit float64
	Status     PositionStatus
}

// AccountStatus is the EA-reported account snapshot, delivered via an
// ACCOUNT_STATUS message.
type AccountStatus struct {
	Balance       float64
	Equity        float64
	Margin        float64
	FreeMargin    float64
	MarginLevel   float64
	OpenPositions int
	ReportedAt    time.Time
}
