package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bc-dunia/swapwatch/internal/telemetry"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{
		DBPath:         filepath.Join(t.TempDir(), "metrics.db"),
		RetentionDays:  30,
		SampleInterval: 5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordSampleAndQuery(t *testing.T) {
	s := openTestStore(t)

	s.RecordSample(Sample{SwapPercent: 42.5, SwapUsedBytes: 1 << 30, SwapTotalBytes: 2 << 30, MemPercent: 60},
		[]telemetry.AppUsage{
			{Name: "postgres", SwapBytes: 512 << 20, SwapPercent: 25},
			{Name: "idle", SwapBytes: 0}, // zero usage rows are skipped
		})

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM swap_samples").Scan(&count); err != nil {
		t.Fatalf("count samples: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 sample row, got %d", count)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM app_swap_usage").Scan(&count); err != nil {
		t.Fatalf("count app usage: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 app usage row (zero-usage skipped), got %d", count)
	}
}

func TestRecordSampleThrottled(t *testing.T) {
	s := openTestStore(t)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }

	s.RecordSample(Sample{SwapPercent: 10}, nil)
	now = now.Add(time.Minute)
	s.RecordSample(Sample{SwapPercent: 11}, nil)

	var count int
	s.db.QueryRow("SELECT COUNT(*) FROM swap_samples").Scan(&count)
	if count != 1 {
		t.Fatalf("expected second sample within interval dropped, got %d rows", count)
	}

	now = now.Add(5 * time.Minute)
	s.RecordSample(Sample{SwapPercent: 12}, nil)

	s.db.QueryRow("SELECT COUNT(*) FROM swap_samples").Scan(&count)
	if count != 2 {
		t.Fatalf("expected sample after interval recorded, got %d rows", count)
	}
}

func TestRecordActionNotThrottled(t *testing.T) {
	s := openTestStore(t)

	s.RecordAction("restart", "nginx.service", "success")
	s.RecordAction("restart", "redis.service", "timeout")
	s.RecordAction("drop_caches", "kernel", "success")

	actions, err := s.RecentActions(10)
	if err != nil {
		t.Fatalf("RecentActions: %v", err)
	}
	if len(actions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(actions))
	}
	// Newest first.
	if actions[0].ActionType != "drop_caches" {
		t.Errorf("expected newest action first, got %s", actions[0].ActionType)
	}
}

func TestPruneDeletesOldRows(t *testing.T) {
	s := openTestStore(t)

	old := time.Now().AddDate(0, 0, -60).Unix()
	if _, err := s.db.Exec(
		"INSERT INTO swap_samples (timestamp, swap_percent, swap_used_bytes, swap_total_bytes, mem_percent) VALUES (?, 1, 0, 0, 0)",
		old,
	); err != nil {
		t.Fatalf("insert old row: %v", err)
	}
	s.RecordAction("restart", "fresh.service", "success")

	n, err := s.prune()
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned row, got %d", n)
	}

	actions, _ := s.RecentActions(10)
	if len(actions) != 1 {
		t.Fatalf("fresh action must survive pruning, got %d", len(actions))
	}
}

func TestDisabledStoreDropsWrites(t *testing.T) {
	s := Disabled()
	if s.Enabled() {
		t.Fatal("Disabled() store must report disabled")
	}
	// Must not panic despite the nil db.
	s.RecordSample(Sample{SwapPercent: 50}, nil)
	s.RecordAction("restart", "nginx.service", "success")
	if actions, err := s.RecentActions(10); err != nil || actions != nil {
		t.Fatalf("disabled store must return nothing, got %v, %v", actions, err)
	}
}

func TestFailDisablesStore(t *testing.T) {
	s := openTestStore(t)
	s.Close() // force subsequent writes to fail

	s.RecordAction("restart", "nginx.service", "success")
	if s.Enabled() {
		t.Fatal("store must disable itself after a write failure")
	}
	// Further writes are silent no-ops.
	s.RecordAction("restart", "redis.service", "success")
}

func TestPrunerStartStop(t *testing.T) {
	s := openTestStore(t)
	p := NewPruner(s)
	p.interval = 10 * time.Millisecond

	p.Start()
	p.Start() // idempotent
	time.Sleep(30 * time.Millisecond)
	p.Stop()
	p.Stop() // idempotent
}
