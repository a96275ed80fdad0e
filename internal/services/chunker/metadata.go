package chunker

import (
	"regexp"
	"strings"
)

const maxKeywords = 20

var (
	headingPattern    = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	capitalizedPhrase = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)
	acronymPattern    = regexp.MustCompile(`\b[A-Z]{2,}\b`)
	quotedPattern     = regexp.MustCompile(`"([^"]{3,60})"`)
	hyphenatedPattern = regexp.MustCompile(`\b[a-zA-Z]+(?:-[a-zA-Z]+)+\b`)
	wordPattern       = regexp.MustCompile(`\b[a-zA-Z]{7,}\b`)
)

// extractHeadings pulls markdown-style heading lines out of the source text
func extractHeadings(text string) []string {
	var headings []string
	for _, match := range headingPattern.FindAllStringSubmatch(text, -1) {
		h := strings.TrimSpace(match[1])
		if h != "" {
			headings = append(headings, h)
		}
	}
	return headings
}

// extractKeywords collects auxiliary lexical signals: capitalized phrases,
// acronyms, quoted terms, hyphenated compounds and repeated long words.
// Keywords are metadata only and never affect ranking.
func extractKeywords(text string) []string {
	seen := make(map[string]struct{})
	var keywords []string

	add := func(k string) {
		k = strings.TrimSpace(k)
		if k == "" || len(keywords) >= maxKeywords {
			return
		}
		key := strings.ToLower(k)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		keywords = append(keywords, k)
	}

	for _, m := range capitalizedPhrase.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range acronymPattern.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range hyphenatedPattern.FindAllString(text, -1) {
		add(m)
	}

	// Long words that repeat are likely topical
	counts := make(map[string]int)
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		counts[w]++
	}
	for w, n := range counts {
		if n >= 3 {
			add(w)
		}
	}

	return keywords
}
