package release

import (
	"regexp"
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	id := GenerateID("Docs.Example.com")
	re := regexp.MustCompile(`^docs_example_com_\d{8}-\d{6}_[0-9a-f]{8}$`)
	if !re.MatchString(id) {
		t.Fatalf("id = %q", id)
	}
	if GenerateID("d") == GenerateID("d") {
		t.Fatal("ids should not collide")
	}
}

func TestSafeSlug(t *testing.T) {
	cases := map[string]string{
		"docs.example.com": "docs_example_com",
		"  MIXED Case ":    "mixed_case",
		"already-ok_1":     "already-ok_1",
		"":                 "domain",
		"...":              "domain",
	}
	for in, want := range cases {
		if got := safeSlug(in); got != want {
			t.Fatalf("safeSlug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateAndGet(t *testing.T) {
	m := NewManager(t.TempDir())
	rec, err := m.Create(Record{
		ReleaseID:  "rel_1",
		Domain:     "d",
		CreatedBy:  "tester",
		Mode:       "single",
		SourceID:   "cap_1",
		SourceHash: "sha256:abc",
		Stats:      &Stats{SectionsTotal: 3, SectionsKept: 2, CanonicalObjects: 2, Chunks: 4},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.CreatedAt == "" || !strings.HasSuffix(rec.CreatedAt, "Z") {
		t.Fatalf("created_at = %q", rec.CreatedAt)
	}
	got, err := m.Get("d", "rel_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Mode != "single" || got.Stats == nil || got.Stats.Chunks != 4 {
		t.Fatalf("record = %+v", got)
	}
}

func TestActiveAndPromote(t *testing.T) {
	m := NewManager(t.TempDir())
	active, err := m.Active("d")
	if err != nil || active != "" {
		t.Fatalf("fresh domain: active = %q, err = %v", active, err)
	}
	ev, err := m.Promote("d", "rel_1", "alice", "initial")
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if ev.Event != "security_release_promoted" {
		t.Fatalf("event = %q", ev.Event)
	}
	if ev.PreviousReleaseID != "" {
		t.Fatalf("previous = %q, want empty", ev.PreviousReleaseID)
	}
	ev2, err := m.Promote("d", "rel_2", "bob", "rollout")
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if ev2.PreviousReleaseID != "rel_1" {
		t.Fatalf("previous = %q, want rel_1", ev2.PreviousReleaseID)
	}
	active, err = m.Active("d")
	if err != nil || active != "rel_2" {
		t.Fatalf("active = %q, err = %v", active, err)
	}
}

func TestAuditNewestFirst(t *testing.T) {
	m := NewManager(t.TempDir())
	m.Promote("d", "rel_1", "alice", "")
	m.Promote("d", "rel_2", "bob", "")
	m.Promote("d", "rel_3", "carol", "")
	events, err := m.Audit("d", 2)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].ReleaseID != "rel_3" || events[1].ReleaseID != "rel_2" {
		t.Fatalf("order = %s, %s", events[0].ReleaseID, events[1].ReleaseID)
	}
	if got, _ := m.Audit("d", 0); got != nil {
		t.Fatalf("limit 0 should return nothing, got %+v", got)
	}
}

func TestList(t *testing.T) {
	m := NewManager(t.TempDir())
	m.Create(Record{ReleaseID: "rel_b", Domain: "d"})
	m.Create(Record{ReleaseID: "rel_a", Domain: "d"})
	ids, err := m.List("d")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 || ids[0] != "rel_a" || ids[1] != "rel_b" {
		t.Fatalf("ids = %v", ids)
	}
	if ids, _ := m.List("missing"); ids != nil {
		t.Fatalf("missing domain: %v", ids)
	}
}

func TestGetMissing(t *testing.T) {
	m := NewManager(t.TempDir())
	if _, err := m.Get("d", "rel_x"); err == nil {
		t.Fatal("expected error for missing release")
	}
}
