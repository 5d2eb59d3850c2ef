// Package signal maps an ensemble prediction and current market state
// into a fully qualified trade signal under risk policy.
package signal

import (
	"hash/fnv"
	"math"
	"time"

	"github.com/google/uuid"

	"genx-signal-engine/internal/errs"
	"genx-signal-engine/internal/model"
)

// Side is the trade direction.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Strength is the four-level confidence categorization.
type Strength string

const (
	Weak        Strength = "WEAK"
	Moderate    Strength = "MODERATE"
	Strong      Strength = "STRONG"
	VeryStrong  Strength = "VERY_STRONG"
)

// MarketCondition is one of the five classified regime labels.
type MarketCondition string

const (
	Uptrend        MarketCondition = "UPTREND"
	Downtrend      MarketCondition = "DOWNTREND"
	Sideways       MarketCondition = "SIDEWAYS"
	HighVolatility MarketCondition = "HIGH_VOLATILITY"
	Mixed          MarketCondition = "MIXED"
)

// Status is the signal lifecycle state.
type Status string

const (
	Active  Status = "ACTIVE"
	Expired Status = "EXPIRED"
)

// Signal is a fully specified trade recommendation.
type Signal struct {
	ID                 string
	CreatedAt          time.Time
	LastUpdate         time.Time
	Symbol             string
	Side               Side
	Strength           Strength
	Entry              float64
	Stop               float64
	Target             float64
	Confidence         float64
	RRRatio            float64
	Timeframe          string
	Expiry             time.Time
	MarketCondition    MarketCondition
	TechnicalConfluence int
	FundamentalScore   float64
	PositionSizeFrac   float64
	MaxRiskFrac        float64
	Status             Status
}

// EAPayload is the wire shape an MT4/5 Expert Advisor consumes.
type EAPayload struct {
	Magic               int32           `json:"magic"`
	Symbol              string          `json:"symbol"`
	Signal              Side            `json:"signal"`
	Strength            int             `json:"strength"`
	EntryPrice          float64         `json:"entry_price"`
	StopLoss            float64         `json:"stop_loss"`
	TakeProfit          float64         `json:"take_profit"`
	Confidence          float64         `json:"confidence"`
	RiskReward          float64         `json:"risk_reward"`
	PositionSize        float64         `json:"position_size"`
	MaxRisk             float64         `json:"max_risk"`
	Timeframe           string          `json:"timeframe"`
	Timestamp           string          `json:"timestamp"`
	ExpiryTime          string          `json:"expiry_time"`
	MarketCondition     MarketCondition `json:"market_condition"`
	TechnicalConfluence int             `json:"technical_confluence"`
	FundamentalScore    float64         `json:"fundamental_score"`
}

// strengthRank maps Strength to a 1-4 ordinal (WEAK=1 .. VERY_STRONG=4)
// since the wire format expects an integer.
func strengthRank(s Strength) int {
	switch s {
	case Moderate:
		return 2
	case Strong:
		return 3
	case VeryStrong:
		return 4
	default:
		return 1
	}
}

// ToEAPayload converts s into the MT4/5-consumable wire format. Magic is
// derived deterministically from symbol and creation time via FNV-1a,
// folded into the int32 range the MQL4/5 Magic Number field accepts, so
// the same signal always maps to the same magic number across processes.
func (s *Signal) ToEAPayload() EAPayload {
	return EAPayload{
		Magic:               magicNumber(s.Symbol, s.CreatedAt),
		Symbol:              s.Symbol,
		Signal:              s.Side,
		Strength:            strengthRank(s.Strength),
		EntryPrice:          round5(s.Entry),
		StopLoss:            round5(s.Stop),
		TakeProfit:          round5(s.Target),
		Confidence:          math.Round(s.Confidence*1e4) / 1e4,
		RiskReward:          math.Round(s.RRRatio*1e2) / 1e2,
		PositionSize:        math.Round(s.PositionSizeFrac*1e4) / 1e4,
		MaxRisk:             math.Round(s.MaxRiskFrac*1e4) / 1e4,
		Timeframe:           s.Timeframe,
		Timestamp:           s.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		ExpiryTime:          s.Expiry.UTC().Format("2006-01-02 15:04:05"),
		MarketCondition:     s.MarketCondition,
		TechnicalConfluence: s.TechnicalConfluence,
		FundamentalScore:    math.Round(s.FundamentalScore*1e4) / 1e4,
	}
}

func magicNumber(symbol string, ts time.Time) int32 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	h.Write([]byte(ts.UTC().Format(time.RFC3339Nano)))
	return int32(h.Sum32() % 2147483647)
}

// IsActive reports whether s is ACTIVE and its expiry is in the future.
func (s *Signal) IsActive(now time.Time) bool {
	return s.Status == Active && now.Before(s.Expiry)
}

// Validate enforces the level invariants.
func (s *Signal) Validate() error {
	switch s.Side {
	case Buy:
		if !(s.Stop < s.Entry && s.Entry < s.Target) {
			return errs.New(errs.ShapeError, "BUY signal must satisfy stop < entry < target")
		}
	case Sell:
		if !(s.Target < s.Entry && s.Entry < s.Stop) {
			return errs.New(errs.ShapeError, "SELL signal must satisfy target < entry < stop")
		}
	default:
		return errs.New(errs.ShapeError, "signal has no side")
	}
	if s.RRRatio < 1.5 {
		return errs.New(errs.ShapeError, "signal risk-reward ratio below minimum")
	}
	return nil
}

// MarketSnapshot is the market-state input the constructor needs beyond
// the prediction itself.
type MarketSnapshot struct {
	CurrentPrice float64
	ATR14        float64
	Condition    MarketCondition
	SMA20        float64
	SMA50        float64
	RSI14        float64
	MACD, MACDSignal float64
}

// RiskPolicy is the subset of risk parameters the constructor consults.
type RiskPolicy struct {
	MaxRiskPerTrade     float64
	MaxVolumePerTrade   float64
	MinConfidence       float64
	SignalExpiry        time.Duration
	BrokerMinIncrement  float64
}

// levelMultipliers returns the (SL, TP) ATR multipliers for a market
// condition.
func levelMultipliers(cond MarketCondition) (sl, tp float64) {
	switch cond {
	case HighVolatility:
		return 2.5, 4.0
	case Uptrend, Downtrend:
		return 2.0, 3.5
	default:
		return 1.5, 3.0
	}
}

// strengthOf computes s = 0.7*confidence + 0.3*min(rr/3, 1).
func strengthOf(confidence, rr float64) Strength {
	s := 0.7*confidence + 0.3*math.Min(rr/3.0, 1.0)
	switch {
	case s >= 0.9:
		return VeryStrong
	case s >= 0.8:
		return Strong
	case s >= 0.7:
		return Moderate
	default:
		return Weak
	}
}

// Confluence counts agreeing independent indicators for side: MA
// alignment, RSI non-extreme in the trade direction, MACD/signal
// alignment.
func Confluence(side Side, snap MarketSnapshot) int {
	n := 0
	switch side {
	case Buy:
		if snap.CurrentPrice > snap.SMA20 && snap.SMA20 > snap.SMA50 {
			n++
		}
		if snap.RSI14 < 70 {
			n++
		}
		if snap.MACD > snap.MACDSignal {
			n++
		}
	case Sell:
		if snap.CurrentPrice < snap.SMA20 && snap.SMA20 < snap.SMA50 {
			n++
		}
		if snap.RSI14 > 30 {
			n++
		}
		if snap.MACD < snap.MACDSignal {
			n++
		}
	}
	return n
}

// roundToIncrement rounds v down to the nearest multiple of increment
// (the broker's minimum size step).
func roundToIncrement(v, increment float64) float64 {
	if increment <= 0 {
		return v
	}
	return math.Floor(v/increment) * increment
}

// New constructs a Signal from a prediction, the current market
// snapshot, risk policy, and account equity estimate. It returns
// (nil, PolicyReject) when the prediction is FLAT, confidence is below
// the policy minimum, or the resulting risk-reward ratio is below 1.5 —
// these are normal outcomes, not errors.
func New(symbol string, timeframe string, prediction model.Probs, equity float64, snap MarketSnapshot, policy RiskPolicy, now time.Time) (*Signal, error) {
	cls, confidence := prediction.Argmax()
	if confidence < policy.MinConfidence {
		return nil, errs.New(errs.PolicyReject, "confidence below minimum threshold")
	}

	var side Side
	switch cls {
	case model.ClassUp:
		side = Buy
	case model.ClassDown:
		side = Sell
	default:
		return nil, errs.New(errs.PolicyReject, "prediction is FLAT")
	}

	entry := snap.CurrentPrice
	slMult, tpMult := levelMultipliers(snap.Condition)
	unit := snap.ATR14

	var stop, target float64
	if side == Buy {
		stop = entry - unit*slMult
		target = entry + unit*tpMult
	} else {
		stop = entry + unit*slMult
		target = entry - unit*tpMult
	}
	stop = round5(stop)
	target = round5(target)

	var risk, reward float64
	if side == Buy {
		risk = entry - stop
		reward = target - entry
	} else {
		risk = stop - entry
		reward = entry - target
	}
	if risk <= 0 {
		return nil, errs.New(errs.PolicyReject, "non-positive risk distance")
	}
	rr := reward / risk
	if rr < 1.5 {
		return nil, errs.New(errs.PolicyReject, "risk-reward ratio below minimum")
	}

	sizeFrac := policy.MaxRiskPerTrade
	if policy.MaxVolumePerTrade > 0 && equity > 0 {
		capped := policy.MaxVolumePerTrade / equity
		if capped < sizeFrac {
			sizeFrac = capped
		}
	}
	if risk > 0 {
		sizeFrac = sizeFrac / risk
	}
	sizeFrac = roundToIncrement(sizeFrac, policy.BrokerMinIncrement)

	expiry := policy.SignalExpiry
	if expiry <= 0 {
		expiry = 4 * time.Hour
	}

	sig := &Signal{
		ID:                  uuid.NewString(),
		CreatedAt:           now,
		LastUpdate:          now,
		Symbol:              symbol,
		Side:                side,
		Strength:            strengthOf(confidence, rr),
		Entry:               entry,
		Stop:                stop,
		Target:              target,
		Confidence:          confidence,
		RRRatio:             rr,
		Timeframe:           timeframe,
		Expiry:              now.Add(expiry),
		MarketCondition:     snap.Condition,
		TechnicalConfluence: Confluence(side, snap),
		FundamentalScore:    0.5,
		PositionSizeFrac:    sizeFrac,
		MaxRiskFrac:         policy.MaxRiskPerTrade,
		Status:              Active,
	}

	if err := sig.Validate(); err != nil {
		return nil, err
	}
	return sig, nil
}

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}
