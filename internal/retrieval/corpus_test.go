package retrieval

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func corpusDoc(sections ...string) string {
	return strings.Join(sections, "\n"+SectionDelimiter+"\n")
}

func TestParseCorpusHeaders(t *testing.T) {
	doc := corpusDoc(
		"SOURCE: https://help.example.com/cards\nTITLE: Debit card limits\n\n"+
			"Daily spending limits can be changed in the app under card settings at any time.",
		"SOURCE: https://help.example.com/fees\nTITLE: Account fees\n\n"+
			"There are no monthly account fees. Fall-below fees do not apply to savings accounts.",
	)

	sections := ParseCorpus(doc)
	if len(sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(sections))
	}

	first := sections[0]
	if first.Source != "https://help.example.com/cards" {
		t.Errorf("Source = %q", first.Source)
	}
	if first.Title != "Debit card limits" {
		t.Errorf("Title = %q", first.Title)
	}
	if strings.Contains(first.Text, "SOURCE:") || strings.Contains(first.Text, "TITLE:") {
		t.Errorf("header lines not stripped from body: %q", first.Text)
	}
	if !strings.Contains(first.Text, "Daily spending limits") {
		t.Errorf("body missing prose: %q", first.Text)
	}
}

func TestParseCorpusSkipsShortSections(t *testing.T) {
	doc := corpusDoc(
		"tiny",
		"SOURCE: https://help.example.com/a\nTITLE: Real page\n\n"+
			"This section is comfortably longer than the minimum threshold for indexing.",
	)
	sections := ParseCorpus(doc)
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1 (short section dropped)", len(sections))
	}
	if sections[0].Title != "Real page" {
		t.Errorf("kept wrong section: %+v", sections[0])
	}
}

func TestParseCorpusMissingHeaders(t *testing.T) {
	doc := "Just a block of prose with no headers at all, long enough to be kept as a section."
	sections := ParseCorpus(doc)
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(sections))
	}
	if sections[0].Source != "" || sections[0].Title != "" {
		t.Errorf("expected empty headers, got %+v", sections[0])
	}
}

func TestLoadCorpusMissingFile(t *testing.T) {
	if _, err := LoadCorpus(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Fatal("expected error for missing corpus file")
	}
}

func TestLoadCorpusRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.txt")
	want := "SOURCE: x\nTITLE: y\n\nbody"
	if err := os.WriteFile(path, []byte(want), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadCorpus(path)
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
