package chunker

import (
	"strings"
	"testing"

	"github.com/avollmer/corpus/canonical"
)

func obj(id string, body ...string) canonical.Object {
	return canonical.Object{ID: id, Domain: "d", Body: body}
}

func TestChunkObjectSmallBodyIsOneChunk(t *testing.T) {
	chunks := ChunkObject(obj("clo_1", "First paragraph.", "Second paragraph."), "d", "rel_1", 800)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	ch := chunks[0]
	if ch.Text != "First paragraph.\n\nSecond paragraph." {
		t.Fatalf("text = %q", ch.Text)
	}
	if !strings.HasPrefix(ch.ChunkID, "chk_") || len(ch.ChunkID) != len("chk_")+24 {
		t.Fatalf("bad chunk id %q", ch.ChunkID)
	}
	if ch.Domain != "d" || ch.ReleaseID != "rel_1" {
		t.Fatalf("chunk = %+v", ch)
	}
}

func TestChunkObjectRespectsMaxChars(t *testing.T) {
	para := strings.TrimSpace(strings.Repeat("This sentence fills space. ", 60))
	chunks := ChunkObject(obj("clo_1", para), "d", "rel_1", 200)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	for i, ch := range chunks {
		if n := len([]rune(ch.Text)); n > 200 {
			t.Fatalf("chunk %d has %d chars", i, n)
		}
		if ch.Text == "" {
			t.Fatalf("chunk %d is empty", i)
		}
	}
}

func TestChunkObjectHardSlicesRunOnText(t *testing.T) {
	runOn := strings.Repeat("x", 500)
	chunks := ChunkObject(obj("clo_1", runOn), "d", "rel_1", 200)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if chunks[0].Text != strings.Repeat("x", 200) {
		t.Fatalf("first slice = %d chars", len(chunks[0].Text))
	}
	if chunks[2].Text != strings.Repeat("x", 100) {
		t.Fatalf("last slice = %d chars", len(chunks[2].Text))
	}
}

func TestChunkObjectDeterministic(t *testing.T) {
	o := obj("clo_1", "Run the installer.", strings.Repeat("Configure the service. ", 50))
	a := ChunkObject(o, "d", "rel_1", 300)
	b := ChunkObject(o, "d", "rel_1", 300)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ChunkID != b[i].ChunkID || a[i].Text != b[i].Text {
			t.Fatalf("chunk %d differs", i)
		}
	}
	c := ChunkObject(o, "d", "rel_2", 300)
	if a[0].ChunkID == c[0].ChunkID {
		t.Fatal("chunk id should change with release")
	}
}

func TestChunkObjectPropagatesTags(t *testing.T) {
	o := canonical.Object{
		ID:        "clo_1",
		Body:      []string{"Some text."},
		ConceptID: "concept-a",
		Level:     "intro",
		GraphID:   "g1",
	}
	chunks := ChunkObject(o, "d", "rel_1", 800)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	ch := chunks[0]
	if ch.ConceptID != "concept-a" || ch.Level != "intro" || ch.GraphID != "g1" {
		t.Fatalf("tags not propagated: %+v", ch)
	}
	if ch.DatasetVersion != "" || ch.IndexVersion != "" {
		t.Fatalf("unset tags should stay empty: %+v", ch)
	}
}

func TestChunkObjectsOrdersByObjectID(t *testing.T) {
	objs := []canonical.Object{
		obj("clo_bbb", "Paragraph from the second object."),
		obj("clo_aaa", "Paragraph from the first object."),
	}
	chunks := ChunkObjects(objs, "d", "rel_1", 800)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	if !strings.Contains(chunks[0].Text, "first object") {
		t.Fatalf("chunks out of order: %q", chunks[0].Text)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One. Two!  Three? Four")
	want := []string{"One.", "Two!", "Three?", "Four"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("piece %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitSentencesNoTerminator(t *testing.T) {
	got := splitSentences("no terminator here")
	if len(got) != 1 || got[0] != "no terminator here" {
		t.Fatalf("got %v", got)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	chunks := ChunkObject(obj("clo_1", "First paragraph.", "Second paragraph."), "d", "rel_1", 800)
	paths, err := store.PutAll(chunks)
	if err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("paths = %v", paths)
	}
	got, err := store.Get("d", "rel_1", chunks[0].ChunkID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Text != chunks[0].Text {
		t.Fatalf("text = %q", got.Text)
	}
	if got.EmbeddingRef != "" {
		t.Fatalf("persisted chunk should have no embedding_ref, got %q", got.EmbeddingRef)
	}
	listed, err := store.List("d", "rel_1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 1 || listed[0].ChunkID != chunks[0].ChunkID {
		t.Fatalf("listed = %+v", listed)
	}
}
