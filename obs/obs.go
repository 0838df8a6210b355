// Package obs is the file-backed operational event log: an append-only
// JSONL event stream per domain, cheap counters, and on-demand summaries
// with basic alerting.
package obs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Event is one recorded operation. Extra fields are flattened into the
// JSON object next to the fixed keys.
type Event struct {
	Timestamp string
	Domain    string
	Event     string
	Status    string
	Level     string
	Extra     map[string]any
}

// MarshalJSON flattens Extra into the top-level object.
func (e Event) MarshalJSON() ([]byte, error) {
	payload := make(map[string]any, len(e.Extra)+5)
	for k, v := range e.Extra {
		payload[k] = v
	}
	payload["timestamp"] = e.Timestamp
	payload["domain"] = e.Domain
	payload["event"] = e.Event
	payload["status"] = e.Status
	payload["level"] = e.Level
	return json.Marshal(payload)
}

// UnmarshalJSON splits fixed keys back out of the object.
func (e *Event) UnmarshalJSON(data []byte) error {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	str := func(key string) string {
		v, _ := payload[key].(string)
		delete(payload, key)
		return v
	}
	e.Timestamp = str("timestamp")
	e.Domain = str("domain")
	e.Event = str("event")
	e.Status = str("status")
	e.Level = str("level")
	if len(payload) > 0 {
		e.Extra = payload
	}
	return nil
}

// Alert is raised by Summarize when the window looks unhealthy.
type Alert struct {
	Type     string `json:"type"`
	Count    int    `json:"count"`
	Severity string `json:"severity"`
}

// Summary is the windowed rollup returned by Summarize.
type Summary struct {
	Domain         string         `json:"domain"`
	WindowHours    int            `json:"window_hours"`
	EventCount     int            `json:"event_count"`
	CountsByEvent  map[string]int `json:"counts_by_event"`
	CountsByStatus map[string]int `json:"counts_by_status"`
	Alerts         []Alert        `json:"alerts"`
}

// Store owns the observability root.
type Store struct {
	Root string
}

func NewStore(root string) *Store { return &Store{Root: root} }

func (s *Store) domainDir(domain string) string {
	return filepath.Join(s.Root, domain)
}

func (s *Store) eventsPath(domain string) string {
	return filepath.Join(s.domainDir(domain), "events.jsonl")
}

func (s *Store) countersPath(domain string) string {
	return filepath.Join(s.domainDir(domain), "counters.json")
}

func utcNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Record appends one event and bumps its counters. Status defaults to
// "success" and level to "INFO".
func (s *Store) Record(domain, event, status string, extra map[string]any) (Event, error) {
	if domain == "" {
		return Event{}, errors.New("obs: domain is required")
	}
	if status == "" {
		status = "success"
	}
	ev := Event{
		Timestamp: utcNow(),
		Domain:    domain,
		Event:     event,
		Status:    status,
		Level:     "INFO",
		Extra:     extra,
	}
	if err := os.MkdirAll(s.domainDir(domain), 0o755); err != nil {
		return Event{}, fmt.Errorf("obs: create dir: %w", err)
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return Event{}, fmt.Errorf("obs: encode event: %w", err)
	}
	fh, err := os.OpenFile(s.eventsPath(domain), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Event{}, fmt.Errorf("obs: open event log: %w", err)
	}
	defer fh.Close()
	if _, err := fh.Write(append(line, '\n')); err != nil {
		return Event{}, fmt.Errorf("obs: append event: %w", err)
	}
	for _, key := range []string{
		"event:" + event,
		"status:" + status,
		"event_status:" + event + ":" + status,
	} {
		if err := s.Increment(domain, key, 1); err != nil {
			return Event{}, err
		}
	}
	return ev, nil
}

// Increment bumps a counter in counters.json; unreadable counter files
// reset to empty rather than failing.
func (s *Store) Increment(domain, key string, amount int) error {
	if err := os.MkdirAll(s.domainDir(domain), 0o755); err != nil {
		return fmt.Errorf("obs: create dir: %w", err)
	}
	path := s.countersPath(domain)
	counters := map[string]int{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &counters); err != nil {
			counters = map[string]int{}
		}
	}
	counters[key] += amount
	data, err := json.MarshalIndent(counters, "", "  ")
	if err != nil {
		return fmt.Errorf("obs: encode counters: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("obs: write counters: %w", err)
	}
	return nil
}

// Counters returns the current counter map of a domain.
func (s *Store) Counters(domain string) (map[string]int, error) {
	data, err := os.ReadFile(s.countersPath(domain))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int{}, nil
		}
		return nil, fmt.Errorf("obs: read counters: %w", err)
	}
	counters := map[string]int{}
	if err := json.Unmarshal(data, &counters); err != nil {
		return map[string]int{}, nil
	}
	return counters, nil
}

// List returns the latest events, newest first.
func (s *Store) List(domain string, limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	data, err := os.ReadFile(s.eventsPath(domain))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("obs: read event log: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	var events []Event
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Summarize rolls up the last `hours` of events and raises alerts on
// integrity failures (high) and quarantines (medium).
func (s *Store) Summarize(domain string, hours int) (Summary, error) {
	since := time.Now().UTC()
	if hours > 0 {
		since = since.Add(-time.Duration(hours) * time.Hour)
	}
	events, err := s.List(domain, 10000)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{
		Domain:         domain,
		WindowHours:    hours,
		CountsByEvent:  map[string]int{},
		CountsByStatus: map[string]int{},
		Alerts:         []Alert{},
	}
	integrityFailures := 0
	for _, ev := range events {
		ts, err := time.Parse(time.RFC3339Nano, ev.Timestamp)
		if err != nil {
			continue
		}
		if ts.Before(since) {
			continue
		}
		summary.EventCount++
		summary.CountsByEvent[ev.Event]++
		summary.CountsByStatus[ev.Status]++
		if ev.Event == "ingestion_integrity_failure" {
			integrityFailures++
		}
	}
	if integrityFailures > 0 {
		summary.Alerts = append(summary.Alerts, Alert{Type: "integrity_failure", Count: integrityFailures, Severity: "high"})
	}
	if n := summary.CountsByEvent["ingestion_quarantine"]; n > 0 {
		summary.Alerts = append(summary.Alerts, Alert{Type: "quarantine", Count: n, Severity: "medium"})
	}
	return summary, nil
}
