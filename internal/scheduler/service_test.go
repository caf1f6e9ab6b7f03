package scheduler

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"crosspost/pkg/logx"
)

func TestServiceFiresJob(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	fired := make(chan struct{}, 4)
	svc := New(Config{Enabled: true, Spec: "1s", Timezone: "UTC"}, func(ctx context.Context) error {
		calls.Add(1)
		fired <- struct{}{}
		return nil
	}, logx.Nop())

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop(context.Background())

	if svc.Next().IsZero() {
		t.Fatal("Next is zero after start")
	}
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}
}

func TestServiceDisabledAndApply(t *testing.T) {
	t.Parallel()
	svc := New(Config{Enabled: false, Spec: "1h"}, func(context.Context) error { return nil }, logx.Nop())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop(context.Background())
	if !svc.Next().IsZero() {
		t.Fatal("disabled scheduler reports a next run")
	}

	if err := svc.Apply(Config{Enabled: true, Spec: "daily:06:00", Timezone: "Asia/Tokyo"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	next := svc.Next()
	if next.IsZero() {
		t.Fatal("Next is zero after enabling")
	}
	if h := next.In(mustLoad(t, "Asia/Tokyo")).Hour(); h != 6 {
		t.Fatalf("next run hour = %d, want 6", h)
	}

	if err := svc.Apply(Config{Enabled: true, Spec: "bogus"}); err == nil {
		t.Fatal("Apply with invalid spec: expected error")
	}
}

func TestIntervalWithSpread(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sched, jitter := intervalWithSpread(time.Minute, now, rand.New(rand.NewSource(1)))
	if jitter < 0 || jitter >= maxStartupSpread {
		t.Fatalf("jitter %v out of range", jitter)
	}
	if jitter%time.Second != 0 {
		t.Fatalf("jitter %v is not whole seconds", jitter)
	}
	first := sched.Next(now)
	if want := now.Add(time.Minute + jitter); !first.Equal(want) {
		t.Fatalf("first = %v, want %v", first, want)
	}
	if second := sched.Next(first); !second.Equal(first.Add(time.Minute)) {
		t.Fatalf("second = %v, want %v", second, first.Add(time.Minute))
	}

	plain, none := intervalWithSpread(time.Minute, now, nil)
	if none != 0 || !plain.Next(now).Equal(now.Add(time.Minute)) {
		t.Fatalf("nil rng should give a plain interval, jitter %v", none)
	}

	// Sub-second intervals have no whole-second window to jitter in.
	if _, j := intervalWithSpread(500*time.Millisecond, now, rand.New(rand.NewSource(2))); j != 0 {
		t.Fatalf("jitter for 500ms interval = %v, want 0", j)
	}
}

func mustLoad(t *testing.T, tz string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}
