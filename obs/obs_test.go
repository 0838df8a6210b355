package obs

import (
	"testing"
)

func TestRecordAndList(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.Record("d", "ingestion_run", "success", map[string]any{"release_id": "rel_1"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := store.Record("d", "ingestion_run", "error", map[string]any{"error": "boom"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	events, err := store.List("d", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events", len(events))
	}
	// newest first
	if events[0].Status != "error" || events[1].Status != "success" {
		t.Fatalf("order = %s, %s", events[0].Status, events[1].Status)
	}
	if events[1].Extra["release_id"] != "rel_1" {
		t.Fatalf("extra = %v", events[1].Extra)
	}
	if events[0].Level != "INFO" || events[0].Domain != "d" {
		t.Fatalf("event = %+v", events[0])
	}
}

func TestListLimitAndMissing(t *testing.T) {
	store := NewStore(t.TempDir())
	for i := 0; i < 5; i++ {
		store.Record("d", "ingestion_run", "success", nil)
	}
	events, err := store.List("d", 3)
	if err != nil || len(events) != 3 {
		t.Fatalf("got %d events, err %v", len(events), err)
	}
	if got, _ := store.List("d", 0); got != nil {
		t.Fatalf("limit 0: %+v", got)
	}
	if got, err := store.List("missing", 10); err != nil || got != nil {
		t.Fatalf("missing domain: %+v, %v", got, err)
	}
}

func TestCounters(t *testing.T) {
	store := NewStore(t.TempDir())
	store.Record("d", "ingestion_run", "success", nil)
	store.Record("d", "ingestion_run", "error", nil)
	store.Record("d", "release_merge", "success", nil)
	counters, err := store.Counters("d")
	if err != nil {
		t.Fatalf("Counters: %v", err)
	}
	if counters["event:ingestion_run"] != 2 {
		t.Fatalf("event counter = %d", counters["event:ingestion_run"])
	}
	if counters["status:success"] != 2 || counters["status:error"] != 1 {
		t.Fatalf("status counters = %v", counters)
	}
	if counters["event_status:ingestion_run:error"] != 1 {
		t.Fatalf("pair counter = %v", counters)
	}
}

func TestSummarizeAlerts(t *testing.T) {
	store := NewStore(t.TempDir())
	store.Record("d", "ingestion_run", "success", nil)
	store.Record("d", "ingestion_quarantine", "success", map[string]any{"reason": "capture_failed"})
	store.Record("d", "ingestion_integrity_failure", "error", nil)
	summary, err := store.Summarize("d", 24)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.EventCount != 3 {
		t.Fatalf("event count = %d", summary.EventCount)
	}
	if summary.CountsByEvent["ingestion_run"] != 1 {
		t.Fatalf("counts = %v", summary.CountsByEvent)
	}
	if len(summary.Alerts) != 2 {
		t.Fatalf("alerts = %+v", summary.Alerts)
	}
	byType := map[string]Alert{}
	for _, a := range summary.Alerts {
		byType[a.Type] = a
	}
	if byType["integrity_failure"].Severity != "high" || byType["quarantine"].Severity != "medium" {
		t.Fatalf("alerts = %+v", summary.Alerts)
	}
}

func TestSummarizeEmptyDomain(t *testing.T) {
	store := NewStore(t.TempDir())
	summary, err := store.Summarize("d", 24)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.EventCount != 0 || len(summary.Alerts) != 0 {
		t.Fatalf("summary = %+v", summary)
	}
}
