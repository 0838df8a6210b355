// Package release manages release records, the per-domain active-release
// pointer, and the promotion audit log.
//
// Layout under the releases root:
//
//	<root>/<domain>/
//	    active_release.txt
//	    releases/<release_id>/release.json
//	    audit.jsonl
package release

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a release record does not exist.
var ErrNotFound = errors.New("release: not found")

// Stats summarizes what an ingestion run produced.
type Stats struct {
	SectionsTotal    int `json:"sections_total"`
	SectionsKept     int `json:"sections_kept"`
	CanonicalObjects int `json:"canonical_objects"`
	Chunks           int `json:"chunks"`
}

// Record is the persisted release metadata.
type Record struct {
	ReleaseID        string   `json:"release_id"`
	Domain           string   `json:"domain"`
	CreatedBy        string   `json:"created_by,omitempty"`
	CreatedAt        string   `json:"created_at"`
	Mode             string   `json:"mode,omitempty"`
	SourceID         string   `json:"source_id,omitempty"`
	SourceHash       string   `json:"source_hash,omitempty"`
	SourceReleaseIDs []string `json:"source_release_ids,omitempty"`
	Stats            *Stats   `json:"stats,omitempty"`
}

// AuditEvent is one line of the promotion audit log.
type AuditEvent struct {
	Timestamp         string `json:"timestamp"`
	Event             string `json:"event"`
	Domain            string `json:"domain"`
	ReleaseID         string `json:"release_id"`
	PreviousReleaseID string `json:"previous_release_id,omitempty"`
	Actor             string `json:"actor,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

func utcNow() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
}

// GenerateID builds a fresh release id: a slug of the domain, a UTC
// timestamp, and the first segment of a random UUID.
func GenerateID(domain string) string {
	ts := time.Now().UTC().Format("20060102-150405")
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s_%s_%s", safeSlug(domain), ts, suffix)
}

func safeSlug(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		return "domain"
	}
	return slug
}

// Manager owns the releases root.
type Manager struct {
	Root string
}

func NewManager(root string) *Manager { return &Manager{Root: root} }

func (m *Manager) domainDir(domain string) string {
	return filepath.Join(m.Root, domain)
}

func (m *Manager) releaseDir(domain, releaseID string) string {
	return filepath.Join(m.domainDir(domain), "releases", releaseID)
}

func (m *Manager) activePath(domain string) string {
	return filepath.Join(m.domainDir(domain), "active_release.txt")
}

func (m *Manager) auditPath(domain string) string {
	return filepath.Join(m.domainDir(domain), "audit.jsonl")
}

// Create writes a release.json for the record, stamping created_at.
func (m *Manager) Create(rec Record) (Record, error) {
	if rec.Domain == "" {
		return Record{}, errors.New("release: domain is required")
	}
	if rec.ReleaseID == "" {
		return Record{}, errors.New("release: release_id is required")
	}
	rec.CreatedAt = utcNow()
	dir := m.releaseDir(rec.Domain, rec.ReleaseID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Record{}, fmt.Errorf("release: create dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return Record{}, fmt.Errorf("release: encode %s: %w", rec.ReleaseID, err)
	}
	path := filepath.Join(dir, "release.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Record{}, fmt.Errorf("release: write %s: %w", path, err)
	}
	return rec, nil
}

// Get loads one release record.
func (m *Manager) Get(domain, releaseID string) (Record, error) {
	path := filepath.Join(m.releaseDir(domain, releaseID), "release.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, fmt.Errorf("%w: %s/%s", ErrNotFound, domain, releaseID)
		}
		return Record{}, fmt.Errorf("release: read %s: %w", path, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("release: decode %s: %w", path, err)
	}
	return rec, nil
}

// List returns the sorted release ids of a domain.
func (m *Manager) List(domain string) ([]string, error) {
	dir := filepath.Join(m.domainDir(domain), "releases")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("release: read dir %s: %w", dir, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Active returns the active release id of a domain, "" when none is set.
func (m *Manager) Active(domain string) (string, error) {
	data, err := os.ReadFile(m.activePath(domain))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("release: read active pointer: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Promote switches the active pointer to releaseID and appends an audit
// event. The release directory is created when missing so promotion of a
// not-yet-recorded release is still auditable.
func (m *Manager) Promote(domain, releaseID, promotedBy, reason string) (AuditEvent, error) {
	if domain == "" {
		return AuditEvent{}, errors.New("release: domain is required")
	}
	if releaseID == "" {
		return AuditEvent{}, errors.New("release: release_id is required")
	}
	previous, err := m.Active(domain)
	if err != nil {
		return AuditEvent{}, err
	}
	if err := os.MkdirAll(m.releaseDir(domain, releaseID), 0o755); err != nil {
		return AuditEvent{}, fmt.Errorf("release: create dir: %w", err)
	}
	if err := os.WriteFile(m.activePath(domain), []byte(releaseID), 0o644); err != nil {
		return AuditEvent{}, fmt.Errorf("release: write active pointer: %w", err)
	}
	event := AuditEvent{
		Timestamp:         utcNow(),
		Event:             "security_release_promoted",
		Domain:            domain,
		ReleaseID:         releaseID,
		PreviousReleaseID: previous,
		Actor:             promotedBy,
		Reason:            reason,
	}
	line, err := json.Marshal(event)
	if err != nil {
		return AuditEvent{}, fmt.Errorf("release: encode audit event: %w", err)
	}
	fh, err := os.OpenFile(m.auditPath(domain), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return AuditEvent{}, fmt.Errorf("release: open audit log: %w", err)
	}
	defer fh.Close()
	if _, err := fh.Write(append(line, '\n')); err != nil {
		return AuditEvent{}, fmt.Errorf("release: append audit event: %w", err)
	}
	return event, nil
}

// Audit returns the latest audit events, newest first.
func (m *Manager) Audit(domain string, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		return nil, nil
	}
	data, err := os.ReadFile(m.auditPath(domain))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("release: read audit log: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	var events []AuditEvent
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var ev AuditEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
