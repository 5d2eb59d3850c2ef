package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSchedulerRunsTicks(t *testing.T) {
	var calls int32
	task := func(ctx context.Context, symbol string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	s := New(Config{Interval: 10 * time.Millisecond, MaxWorkers: 2}, task, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	s.Register(ctx, "EURUSD")

	time.Sleep(60 * time.Millisecond)
	cancel()
	s.Stop()

	if atomic.LoadInt32(&calls) == 0 {
		t.Fatal("expected at least one tick to run")
	}
}

func TestSchedulerKillSwitchTrips(t *testing.T) {
	task := func(ctx context.Context, symbol string) error {
		return errors.New("boom")
	}
	s := New(Config{Interval: 5 * time.Millisecond, MaxWorkers: 2, FailureThreshold: 3, CooldownPeriod: time.Hour}, task, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	s.Register(ctx, "GBPUSD")

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if s.KillSwitchTripped("GBPUSD") {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !s.KillSwitchTripped("GBPUSD") {
		t.Fatal("expected kill switch to trip after repeated failures")
	}
	cancel()
	s.Stop()
}

func TestSchedulerForceTickRunsImmediately(t *testing.T) {
	var calls int32
	task := func(ctx context.Context, symbol string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	s := New(Config{Interval: time.Hour, MaxWorkers: 2}, task, zerolog.Nop())

	results := s.Tick(context.Background(), "EURUSD", "GBPUSD")
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for sym, err := range results {
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", sym, err)
		}
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 forced calls, got %d", calls)
	}
}

func TestSchedulerForceTickReportsFailures(t *testing.T) {
	task := func(ctx context.Context, symbol string) error {
		if symbol == "BADPAIR" {
			return errors.New("boom")
		}
		return nil
	}
	s := New(Config{Interval: time.Hour, MaxWorkers: 2}, task, zerolog.Nop())

	results := s.Tick(context.Background(), "EURUSD", "BADPAIR")
	if results["EURUSD"] != nil {
		t.Fatalf("expected EURUSD to succeed, got %v", results["EURUSD"])
	}
	if results["BADPAIR"] == nil {
		t.Fatal("expected BADPAIR to fail")
	}
}

func TestSchedulerResetClearsKillSwitch(t *testing.T) {
	s := New(Config{Interval: time.Second, MaxWorkers: 1}, func(ctx context.Context, symbol string) error { return nil }, zerolog.Nop())
	s.Register(context.Background(), "XAUUSD")
	s.Reset("XAUUSD")
	if s.KillSwitchTripped("XAUUSD") {
		t.Fatal("expected kill switch clear after reset")
	}
}
