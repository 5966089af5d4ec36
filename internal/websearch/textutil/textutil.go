// Package textutil holds the pure text helpers used to build search prompts:
// URL detection in free text, relevant snippet selection, hostname extraction
// and prompt escaping. Nothing in this package performs I/O.
package textutil

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultSnippetLimit is the rune budget used by ChooseRelevantSnippet callers
const DefaultSnippetLimit = 800

// minParagraphLength is the rune count below which a paragraph is ignored
const minParagraphLength = 40

var (
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
	termPattern    = regexp.MustCompile(`[a-z0-9]+`)

	urlPattern = regexp.MustCompile(`(?i)(?:https?://[^\s<>"']+|www\.[^\s<>"']+|(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+(?:com|org|net|edu|gov|mil|int|info|biz|io|ai|dev|app|co|me|tv|us|uk|de|fr|jp|cn|ru|br|in|it|es|nl|au|ca|ch|se|no|eu|xyz|tech|blog|news|wiki)\b(?::\d+)?(?:/[^\s<>"']*)?)`)
)

// URLDetection is the outcome of scanning a query for website references
type URLDetection struct {
	URLs         []string
	CleanedQuery string
}

// EscapeForPrompt escapes text for embedding inside a <result> fragment
func EscapeForPrompt(text string) string {
	return html.EscapeString(text)
}

// HostnameFromURL returns the host part of rawURL, or rawURL itself when it cannot be parsed
func HostnameFromURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}

// DetectURLsInQuery finds bare domains, www. hosts and http(s) links in query.
// Each match is normalized to an absolute URL and removed from the cleaned query.
func DetectURLsInQuery(query string) URLDetection {
	matches := urlPattern.FindAllStringIndex(query, -1)

	var (
		urls    []string
		seen    = make(map[string]bool)
		cleaned strings.Builder
		last    int
	)
	for _, m := range matches {
		start, end := m[0], m[1]
		if start > 0 && strings.ContainsRune("@./-_", rune(query[start-1])) {
			continue
		}
		// Trailing punctuation belongs to the sentence, not the URL
		for end > start && strings.ContainsRune(".,;:!?)]}'\"", rune(query[end-1])) {
			end--
		}
		if end <= start {
			continue
		}

		normalized := normalizeURL(query[start:end])
		if !seen[normalized] {
			seen[normalized] = true
			urls = append(urls, normalized)
		}

		cleaned.WriteString(query[last:start])
		cleaned.WriteString(" ")
		last = m[1]
	}

	if len(urls) == 0 {
		return URLDetection{URLs: []string{}, CleanedQuery: query}
	}

	cleaned.WriteString(query[last:])
	return URLDetection{
		URLs:         urls,
		CleanedQuery: strings.Join(strings.Fields(cleaned.String()), " "),
	}
}

func normalizeURL(match string) string {
	lower := strings.ToLower(match)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return match
	}
	return "https://" + match
}

// ChooseRelevantSnippet returns the paragraph of text that mentions the query
// terms most often, truncated to limit runes. Ties keep the earliest paragraph.
func ChooseRelevantSnippet(text, query string, limit int) string {
	if limit <= 0 {
		limit = DefaultSnippetLimit
	}

	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return ""
	}

	terms := queryTerms(query)
	best, bestScore := paragraphs[0], -1
	for _, p := range paragraphs {
		score := scoreParagraph(p, terms)
		if score > bestScore {
			best, bestScore = p, score
		}
	}

	return Truncate(best, limit)
}

func splitParagraphs(text string) []string {
	var all, long []string
	for _, p := range paragraphSplit.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		all = append(all, p)
		if utf8.RuneCountInString(p) >= minParagraphLength {
			long = append(long, p)
		}
	}
	if len(long) > 0 {
		return long
	}
	return all
}

func queryTerms(query string) map[string]bool {
	terms := make(map[string]bool)
	for _, t := range termPattern.FindAllString(strings.ToLower(query), -1) {
		if len(t) > 2 {
			terms[t] = true
		}
	}
	return terms
}

func scoreParagraph(paragraph string, terms map[string]bool) int {
	if len(terms) == 0 {
		return 0
	}
	score := 0
	for _, token := range termPattern.FindAllString(strings.ToLower(paragraph), -1) {
		if terms[token] {
			score++
		}
	}
	return score
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
