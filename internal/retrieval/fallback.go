package retrieval

import (
	"regexp"
	"sort"
	"strings"
)

// Keyword fallback parameters. Scores favour sections that match many
// keywords while penalising long sections, so concise help answers rank
// above sprawling policy pages.
const (
	keywordScore     = 100
	allKeywordsBonus = 200
	minFallbackLen   = 100
	snippetLines     = 10
	snippetMaxChars  = 600
	fallbackResults  = 3
)

// stopWords is the closed set of query words ignored by the fallback
// scorer.
var stopWords = map[string]struct{}{
	"are": {}, "the": {}, "is": {}, "a": {}, "an": {}, "and": {}, "or": {},
	"but": {}, "in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "from": {}, "my": {}, "your": {}, "i": {}, "you": {},
	"it": {}, "this": {}, "that": {}, "be": {}, "can": {}, "do": {},
	"does": {}, "what": {}, "how": {}, "when": {}, "where": {}, "why": {},
	"which": {},
}

var wordRe = regexp.MustCompile(`\b[a-z]+\b`)

// queryKeywords lowercases the query and keeps alphabetic words longer than
// two characters that are not stop words.
func queryKeywords(query string) []string {
	words := wordRe.FindAllString(strings.ToLower(query), -1)
	keywords := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		keywords = append(keywords, w)
	}
	return keywords
}

type fallbackMatch struct {
	score   float64
	snippet string
}

// KeywordSearch scores paragraph-separated sections of the raw corpus by
// keyword overlap and returns the top snippets formatted like the semantic
// search results. Used when the vector store is disabled or the embedding
// service fails at query time.
func KeywordSearch(corpus, query string) string {
	keywords := queryKeywords(query)
	if len(keywords) == 0 {
		return NoResultsMessage
	}

	var matches []fallbackMatch
	for _, section := range strings.Split(corpus, "\n\n") {
		sectionLower := strings.ToLower(section)
		sectionLen := len(strings.TrimSpace(section))
		if sectionLen < minFallbackLen {
			continue
		}

		hits := 0
		for _, kw := range keywords {
			if strings.Contains(sectionLower, kw) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}

		score := float64(hits * keywordScore)
		if hits == len(keywords) {
			score += allKeywordsBonus
		}
		score /= float64(sectionLen) / 100

		if snippet := sectionSnippet(section); snippet != "" {
			matches = append(matches, fallbackMatch{score: score, snippet: snippet})
		}
	}

	if len(matches) == 0 {
		return NoResultsMessage
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	seen := make(map[string]struct{})
	var unique []string
	for _, m := range matches {
		if len(unique) >= fallbackResults {
			break
		}
		if _, dup := seen[m.snippet]; dup {
			continue
		}
		seen[m.snippet] = struct{}{}
		unique = append(unique, m.snippet)
	}
	return strings.Join(unique, "\n\n---\n\n")
}

// sectionSnippet joins the first content lines of a section (headers and
// delimiter debris removed) into a bounded one-paragraph snippet.
func sectionSnippet(section string) string {
	var content []string
	for _, line := range strings.Split(strings.TrimSpace(section), "\n") {
		line = strings.TrimSpace(line)
		if line == "" ||
			strings.HasPrefix(line, "=") ||
			strings.HasPrefix(line, "SOURCE:") ||
			strings.HasPrefix(line, "TITLE:") {
			continue
		}
		content = append(content, line)
		if len(content) >= snippetLines {
			break
		}
	}
	if len(content) == 0 {
		return ""
	}
	snippet := strings.Join(content, " ")
	if len(snippet) > snippetMaxChars {
		snippet = snippet[:snippetMaxChars]
	}
	return snippet
}
