// Package bulletin implements the signal bulletin board: it writes the
// current active-signal set to multiple files for EA and operator
// consumption, evicts expired or excess signals, and takes a daily
// backup. The "workbook" is rendered as a set of CSV sheets rather than
// an xlsx file (documented as a stdlib choice in DESIGN.md).
package bulletin

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"genx-signal-engine/internal/errs"
	"genx-signal-engine/internal/signal"
)

// Policy tunes eviction and backup behaviour.
type Policy struct {
	MaxAge       time.Duration // signals older than this are evicted regardless of expiry
	MaxSignals   int           // cap on the active set size; oldest evicted first
}

// Board owns the active signal set and writes it to disk in several
// formats atomically on every Update.
type Board struct {
	dir    string
	policy Policy

	active  map[string]*signal.Signal
	history []*signal.Signal
}

// New builds a Board writing under dir, creating it if necessary.
func New(dir string, policy Policy) (*Board, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.TransientIO, "bulletin: create output dir", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "backups"), 0o755); err != nil {
		return nil, errs.Wrap(errs.TransientIO, "bulletin: create backup dir", err)
	}
	if policy.MaxAge <= 0 {
		policy.MaxAge = 24 * time.Hour
	}
	if policy.MaxSignals <= 0 {
		policy.MaxSignals = 50
	}
	return &Board{
		dir:    dir,
		policy: policy,
		active: make(map[string]*signal.Signal),
	}, nil
}

// Update merges new signals into the active set, evicts stale ones, and
// rewrites every output format atomically.
func (b *Board) Update(now time.Time, signals []*signal.Signal) error {
	for _, s := range signals {
		b.active[s.ID] = s
		b.history = append(b.history, s)
	}
	b.evict(now)

	if err := b.writeWorkbookCSVs(); err != nil {
		return err
	}
	if err := b.writeUnifiedCSV(); err != nil {
		return err
	}
	if err := b.writeBrokerCSV(); err != nil {
		return err
	}
	if err := b.writeEnhancedBrokerCSV(); err != nil {
		return err
	}
	if err := b.writeJSON(now); err != nil {
		return err
	}
	if err := b.backupIfNeeded(now); err != nil {
		return err
	}
	return nil
}

func (b *Board) evict(now time.Time) {
	for id, s := range b.active {
		if now.After(s.Expiry) {
			delete(b.active, id)
			continue
		}
		if now.Sub(s.CreatedAt) > b.policy.MaxAge {
			delete(b.active, id)
		}
	}
	if len(b.active) <= b.policy.MaxSignals {
		return
	}
	ordered := b.sortedActive()
	keep := make(map[string]*signal.Signal, b.policy.MaxSignals)
	for _, s := range ordered[:b.policy.MaxSignals] {
		keep[s.ID] = s
	}
	b.active = keep
}

// sortedActive returns active signals newest-created first.
func (b *Board) sortedActive() []*signal.Signal {
	out := make([]*signal.Signal, 0, len(b.active))
	for _, s := range b.active {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// writeAtomic writes data to name via a temp file, fsync, then rename,
// so readers never observe a partially-written file.
func writeAtomic(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".bulletin-tmp-*")
	if err != nil {
		return errs.Wrap(errs.TransientIO, "bulletin: create temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := write(tmp); err != nil {
		tmp.Close()
		return errs.Wrap(errs.TransientIO, "bulletin: write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errs.Wrap(errs.TransientIO, "bulletin: fsync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(errs.TransientIO, "bulletin: close temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errs.Wrap(errs.TransientIO, "bulletin: rename into place", err)
	}
	return nil
}

func (b *Board) path(name string) string {
	return filepath.Join(b.dir, name)
}

// writeWorkbookCSVs renders the multi-sheet "workbook" as one CSV per
// sheet: Active, History, Summary.
func (b *Board) writeWorkbookCSVs() error {
	active := b.sortedActive()

	if err := writeAtomic(b.path("workbook_active.csv"), func(f *os.File) error {
		w := csv.NewWriter(f)
		defer w.Flush()
		w.Write(unifiedHeaders)
		for _, s := range active {
			w.Write(unifiedRow(s))
		}
		return w.Error()
	}); err != nil {
		return err
	}

	if err := writeAtomic(b.path("workbook_history.csv"), func(f *os.File) error {
		w := csv.NewWriter(f)
		defer w.Flush()
		w.Write(unifiedHeaders)
		for _, s := range b.history {
			w.Write(unifiedRow(s))
		}
		return w.Error()
	}); err != nil {
		return err
	}

	return writeAtomic(b.path("workbook_summary.csv"), func(f *os.File) error {
		w := csv.NewWriter(f)
		defer w.Flush()
		w.Write([]string{"Metric", "Value"})
		w.Write([]string{"ActiveSignals", strconv.Itoa(len(active))})
		w.Write([]string{"HistorySignals", strconv.Itoa(len(b.history))})
		return w.Error()
	})
}

var unifiedHeaders = []string{
	"ID", "Symbol", "Signal", "Strength", "EntryPrice", "StopLoss", "TakeProfit",
	"Confidence", "RiskReward", "PositionSize", "MaxRisk", "Timeframe",
	"Timestamp", "ExpiryTime", "MarketCondition", "TechnicalConfluence",
	"FundamentalScore", "Status",
}

func unifiedRow(s *signal.Signal) []string {
	return []string{
		s.ID, s.Symbol, string(s.Side), string(s.Strength),
		formatFloat(s.Entry), formatFloat(s.Stop), formatFloat(s.Target),
		formatFloat(s.Confidence), formatFloat(s.RRRatio), formatFloat(s.PositionSizeFrac),
		formatFloat(s.MaxRiskFrac), s.Timeframe,
		s.CreatedAt.UTC().Format(time.RFC3339), s.Expiry.UTC().Format(time.RFC3339),
		string(s.MarketCondition), strconv.Itoa(s.TechnicalConfluence),
		formatFloat(s.FundamentalScore), string(s.Status),
	}
}

func (b *Board) writeUnifiedCSV() error {
	active := b.sortedActive()
	return writeAtomic(b.path("genx_signals.csv"), func(f *os.File) error {
		w := csv.NewWriter(f)
		defer w.Flush()
		w.Write(unifiedHeaders)
		for _, s := range active {
			w.Write(unifiedRow(s))
		}
		return w.Error()
	})
}

// brokerRow is the simplified MT4-style broker row: exact column order
// Magic,Symbol,Signal,EntryPrice,StopLoss,TakeProfit,LotSize,Timestamp,
// built from the EA wire payload (signal.Signal.ToEAPayload) rather than
// from the Signal's own fields, so the Magic number matches what an EA
// reading the TCP transport would have received.
func brokerRow(s *signal.Signal) []string {
	p := s.ToEAPayload()
	lotSize := p.PositionSize
	if lotSize <= 0 {
		lotSize = 0.01
	}
	return []string{
		strconv.Itoa(int(p.Magic)), p.Symbol, string(p.Signal),
		formatFloat(p.EntryPrice), formatFloat(p.StopLoss), formatFloat(p.TakeProfit),
		strconv.FormatFloat(round2(lotSize), 'f', 2, 64),
		p.Timestamp,
	}
}

func (b *Board) writeBrokerCSV() error {
	active := b.sortedActive()
	return writeAtomic(b.path("broker_signals.csv"), func(f *os.File) error {
		w := csv.NewWriter(f)
		defer w.Flush()
		w.Write([]string{"Magic", "Symbol", "Signal", "EntryPrice", "StopLoss", "TakeProfit", "LotSize", "Timestamp"})
		for _, s := range active {
			w.Write(brokerRow(s))
		}
		return w.Error()
	})
}

func (b *Board) writeEnhancedBrokerCSV() error {
	active := b.sortedActive()
	return writeAtomic(b.path("broker_signals_enhanced.csv"), func(f *os.File) error {
		w := csv.NewWriter(f)
		defer w.Flush()
		w.Write([]string{"Magic", "Symbol", "Signal", "EntryPrice", "StopLoss", "TakeProfit",
			"Volume", "Confidence", "RiskReward", "Expiry", "Comment"})
		for _, s := range active {
			p := s.ToEAPayload()
			volume := p.PositionSize
			if volume <= 0 {
				volume = 0.01
			}
			comment := fmt.Sprintf("GenX_%s_%s", p.MarketCondition, s.Strength)
			w.Write([]string{
				strconv.Itoa(int(p.Magic)), p.Symbol, string(p.Signal),
				formatFloat(p.EntryPrice), formatFloat(p.StopLoss), formatFloat(p.TakeProfit),
				strconv.FormatFloat(volume, 'f', 2, 64),
				formatFloat(p.Confidence), formatFloat(p.RiskReward),
				p.ExpiryTime, comment,
			})
		}
		return w.Error()
	})
}

type jsonSnapshot struct {
	Signals    []jsonSignal `json:"signals"`
	LastUpdate string       `json:"last_update"`
	Metadata   jsonMeta     `json:"metadata"`
}

type jsonMeta struct {
	TotalSignals       int `json:"total_signals"`
	SignalHistoryCount int `json:"signal_history_count"`
	MaxSignals         int `json:"max_signals"`
}

type jsonSignal struct {
	ID                  string  `json:"id"`
	Symbol              string  `json:"symbol"`
	Signal              string  `json:"signal"`
	Strength            string  `json:"strength"`
	EntryPrice          float64 `json:"entry_price"`
	StopLoss            float64 `json:"stop_loss"`
	TakeProfit          float64 `json:"take_profit"`
	Confidence          float64 `json:"confidence"`
	RiskReward          float64 `json:"risk_reward"`
	PositionSize        float64 `json:"position_size"`
	Timeframe           string  `json:"timeframe"`
	ExpiryTime          string  `json:"expiry_time"`
	MarketCondition     string  `json:"market_condition"`
	TechnicalConfluence int     `json:"technical_confluence"`
	Status              string  `json:"status"`
}

func (b *Board) writeJSON(now time.Time) error {
	active := b.sortedActive()
	snap := jsonSnapshot{
		LastUpdate: now.UTC().Format(time.RFC3339),
		Metadata: jsonMeta{
			TotalSignals:       len(active),
			SignalHistoryCount: len(b.history),
			MaxSignals:         b.policy.MaxSignals,
		},
	}
	for _, s := range active {
		snap.Signals = append(snap.Signals, jsonSignal{
			ID: s.ID, Symbol: s.Symbol, Signal: string(s.Side), Strength: string(s.Strength),
			EntryPrice: s.Entry, StopLoss: s.Stop, TakeProfit: s.Target,
			Confidence: s.Confidence, RiskReward: s.RRRatio, PositionSize: s.PositionSizeFrac,
			Timeframe: s.Timeframe, ExpiryTime: s.Expiry.UTC().Format(time.RFC3339),
			MarketCondition: string(s.MarketCondition), TechnicalConfluence: s.TechnicalConfluence,
			Status: string(s.Status),
		})
	}

	return writeAtomic(b.path("genx_signals.json"), func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	})
}

func (b *Board) backupIfNeeded(now time.Time) error {
	backupName := fmt.Sprintf("signals_backup_%s.csv", now.UTC().Format("2006-01-02"))
	backupPath := filepath.Join(b.dir, "backups", backupName)
	if _, err := os.Stat(backupPath); err == nil {
		return nil // already backed up today
	}

	src, err := os.ReadFile(b.path("genx_signals.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Wrap(errs.TransientIO, "bulletin: read source for backup", err)
	}
	return writeAtomic(backupPath, func(f *os.File) error {
		_, err := f.Write(src)
		return err
	})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 5, 64)
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
