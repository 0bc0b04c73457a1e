package dashboard

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"marketview/internal/metrics"
	"marketview/models"
)

func TestHistoryKeepsNewest(t *testing.T) {
	h := newHistory[int](3)
	for i := 0; i < 7; i++ {
		h.push(i)
	}
	got := h.snapshot()
	if len(got) != 3 || got[0] != 4 || got[2] != 6 {
		t.Fatalf("unexpected history: %v", got)
	}

	got[0] = 99
	if h.snapshot()[0] != 4 {
		t.Fatal("snapshot must be a copy")
	}
}

func TestMetricStoreLimit(t *testing.T) {
	store := newMetricStore(2)
	for i := 0; i < 5; i++ {
		store.handle(metrics.Metric{Timestamp: time.Unix(int64(i), 0), Name: metrics.TickerBufferLength, Value: i})
	}

	snapshot := store.snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 metrics in snapshot, got %d", len(snapshot))
	}
	if snapshot[0].Value != 3 || snapshot[1].Value != 4 {
		t.Fatalf("unexpected metrics retained: %#v", snapshot)
	}
}

func TestLogStoreCapturesEntries(t *testing.T) {
	store := newLogStore(3)
	entry := logrus.NewEntry(logrus.New())
	entry.Time = time.Unix(10, 0)
	entry.Level = logrus.WarnLevel
	entry.Message = "failed to open depth stream"
	entry.Data = logrus.Fields{
		"component": "depth_reader",
		"symbol":    "BTCUSDT",
		"error":     errors.New("dial refused"),
		"state":     models.StateIdle,
	}

	if err := store.Fire(entry); err != nil {
		t.Fatalf("store.Fire returned error: %v", err)
	}

	snapshot := store.snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(snapshot))
	}
	rec := snapshot[0]
	if rec.Component != "depth_reader" || rec.Fields["symbol"] != "BTCUSDT" {
		t.Fatalf("unexpected record: %#v", rec)
	}
	if rec.Fields["error"] != "dial refused" || rec.Fields["state"] != "idle" {
		t.Fatalf("error and stringer fields should be flattened: %#v", rec.Fields)
	}
	if _, ok := rec.Fields["component"]; ok {
		t.Fatal("component must not be duplicated into fields")
	}
}

func TestLogStoreRespectsLimitAndClose(t *testing.T) {
	store := newLogStore(2)
	for i := 0; i < 4; i++ {
		entry := logrus.NewEntry(logrus.New())
		entry.Message = "msg"
		entry.Level = logrus.InfoLevel
		entry.Data = logrus.Fields{"index": i}
		if err := store.Fire(entry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := len(store.snapshot()); got != 2 {
		t.Fatalf("expected 2 entries after pruning, got %d", got)
	}

	store.close()
	entry := logrus.NewEntry(logrus.New())
	entry.Message = "ignored"
	if err := store.Fire(entry); err != nil {
		t.Fatalf("unexpected error after close: %v", err)
	}
	if got := len(store.snapshot()); got != 2 {
		t.Fatalf("store accepted entries after close")
	}
}
