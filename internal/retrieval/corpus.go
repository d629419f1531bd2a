// Package retrieval implements the knowledge-base search service: corpus
// parsing, chunking, one-shot indexing into a vector store, semantic query,
// and a keyword-scoring fallback for when the store is unavailable.
package retrieval

import (
	"fmt"
	"os"
	"strings"
)

// SectionDelimiter separates scraped pages in the consolidated corpus file.
var SectionDelimiter = strings.Repeat("=", 100)

// minSectionLen is the threshold below which a section is ignored during
// indexing (delimiter debris, empty pages).
const minSectionLen = 50

// Section is one scraped page of the corpus.
type Section struct {
	// Index is the section's ordinal in the corpus file.
	Index int

	// Source is the page URL from the SOURCE: header line, if present.
	Source string

	// Title is the page title from the TITLE: header line, if present.
	Title string

	// Text is the section prose with header lines removed.
	Text string
}

// ParseCorpus splits the corpus document into sections and extracts the
// SOURCE:/TITLE: headers from the first lines of each. Sections shorter than
// minSectionLen characters are dropped.
func ParseCorpus(content string) []Section {
	raw := strings.Split(content, SectionDelimiter)
	sections := make([]Section, 0, len(raw))

	for i, sec := range raw {
		sec = strings.TrimSpace(sec)
		if len(sec) < minSectionLen {
			continue
		}

		lines := strings.Split(sec, "\n")
		var source, title string
		// Headers appear within the first few lines of a section.
		for _, line := range lines[:min(5, len(lines))] {
			if v, ok := strings.CutPrefix(line, "SOURCE:"); ok {
				source = strings.TrimSpace(v)
			} else if v, ok := strings.CutPrefix(line, "TITLE:"); ok {
				title = strings.TrimSpace(v)
			}
		}

		body := make([]string, 0, len(lines))
		for _, line := range lines {
			if strings.HasPrefix(line, "SOURCE:") || strings.HasPrefix(line, "TITLE:") {
				continue
			}
			body = append(body, line)
		}

		sections = append(sections, Section{
			Index:  i,
			Source: source,
			Title:  title,
			Text:   strings.TrimSpace(strings.Join(body, "\n")),
		})
	}
	return sections
}

// LoadCorpus reads the corpus file at path. A missing file is an error: the
// retrieval service cannot run without its knowledge base.
func LoadCorpus(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("retrieval: load corpus %q: %w", path, err)
	}
	return string(data), nil
}
