// Package riskparams implements the hot-reloadable risk parameter
// snapshot: readers always see a fully-formed snapshot via atomic
// pointer swap, and a Redis-backed store publishes updates so every
// process sharing the parameters picks them up without a restart.
package riskparams

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"genx-signal-engine/internal/errs"
)

const (
	redisKey     = "genx:risk_params"
	redisChannel = "genx:risk_params:updates"
)

// Snapshot is the full set of risk parameters consulted by the signal
// constructor and validator (RiskPolicy fields plus validator tuning).
type Snapshot struct {
	MaxRiskPerTrade      float64       `json:"max_risk_per_trade"`
	MaxVolumePerTrade    float64       `json:"max_volume_per_trade"`
	MinConfidence        float64       `json:"min_confidence"`
	SignalExpiry         time.Duration `json:"signal_expiry"`
	BrokerMinIncrement   float64       `json:"broker_min_increment"`
	RequiredAgreement    int           `json:"required_agreement"`
	DedupeWindow         time.Duration `json:"dedupe_window"`
	MaxConcurrentSignals int           `json:"max_concurrent_signals"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Default returns conservative defaults, used before the first load.
func Default() Snapshot {
	return Snapshot{
		MaxRiskPerTrade:      0.01,
		MaxVolumePerTrade:    1000,
		MinConfidence:        0.6,
		SignalExpiry:         4 * time.Hour,
		BrokerMinIncrement:   0.01,
		RequiredAgreement:    2,
		DedupeWindow:         30 * time.Minute,
		MaxConcurrentSignals: 3,
	}
}

// Store owns the live snapshot (behind an atomic.Value, so reads never
// block writers) and a Redis client for durability and pub/sub
// propagation to other processes.
type Store struct {
	current atomic.Value // Snapshot
	client  *redis.Client
	log     zerolog.Logger
}

// NewStore builds a Store backed by a Redis client at addr, seeded with
// Default() until the first Load or subscription update arrives.
func NewStore(addr, password string, db int, log zerolog.Logger) *Store {
	s := &Store{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     password,
			DB:           db,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		}),
		log: log,
	}
	s.current.Store(Default())
	return s
}

// Current returns the latest snapshot, safe for concurrent use.
func (s *Store) Current() Snapshot {
	return s.current.Load().(Snapshot)
}

// Load fetches the persisted snapshot from Redis, falling back silently
// to the current in-memory value if the key is absent.
func (s *Store) Load(ctx context.Context) error {
	raw, err := s.client.Get(ctx, redisKey).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.TransientIO, "riskparams: load from redis", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return errs.Wrap(errs.DataQuality, "riskparams: unmarshal snapshot", err)
	}
	s.current.Store(snap)
	return nil
}

// Update persists a new snapshot to Redis and publishes it to every
// subscribed process, including this one.
func (s *Store) Update(ctx context.Context, snap Snapshot) error {
	snap.UpdatedAt = time.Now()
	raw, err := json.Marshal(snap)
	if err != nil {
		return errs.Wrap(errs.DataQuality, "riskparams: marshal snapshot", err)
	}
	if err := s.client.Set(ctx, redisKey, raw, 0).Err(); err != nil {
		return errs.Wrap(errs.TransientIO, "riskparams: persist snapshot", err)
	}
	if err := s.client.Publish(ctx, redisChannel, raw).Err(); err != nil {
		return errs.Wrap(errs.TransientIO, "riskparams: publish update", err)
	}
	s.current.Store(snap)
	return nil
}

// Watch subscribes to the update channel and swaps Current() atomically
// as updates arrive. It runs until ctx is cancelled or the subscription
// errors out.
func (s *Store) Watch(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, redisChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errs.New(errs.TransientIO, "riskparams: subscription channel closed")
			}
			var snap Snapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
				s.log.Warn().Err(err).Msg("riskparams: dropping malformed update")
				continue
			}
			s.current.Store(snap)
			s.log.Info().Time("updated_at", snap.UpdatedAt).Msg("risk parameters hot-reloaded")
		}
	}
}

// Close releases the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
