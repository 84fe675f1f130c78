package search

import (
	"regexp"
	"strings"
)

// multiSpaceRegex matches consecutive whitespace. Pre-compiled for
// normalizeQuery.
var multiSpaceRegex = regexp.MustCompile(`\s+`)

// nonWordRegex strips punctuation when extracting keywords.
var nonWordRegex = regexp.MustCompile(`[^a-z0-9]+`)

// commonWords is a package-level set for O(1) stop-word lookup.
var commonWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "it": {}, "this": {},
	"with": {}, "by": {}, "from": {}, "as": {}, "is": {}, "that": {},
	"was": {}, "are": {}, "were": {}, "be": {}, "been": {}, "what": {},
	"being": {}, "have": {}, "has": {}, "had": {}, "do": {}, "how": {},
	"does": {}, "did": {}, "will": {}, "would": {}, "should": {},
	"could": {}, "may": {}, "might": {}, "must": {}, "can": {},
}

// normalizeQuery lowercases, collapses whitespace and trims a query so
// that variants of the same query normalize identically.
func normalizeQuery(query string) string {
	query = strings.ToLower(query)
	query = multiSpaceRegex.ReplaceAllString(query, " ")
	return strings.TrimSpace(query)
}

// extractKeywords returns the query's non-stop-word terms. A query that
// yields no keywords would otherwise degrade into a full scan, so
// callers short-circuit to an empty result instead of querying at all.
func extractKeywords(query string) []string {
	query = normalizeQuery(query)
	if query == "" {
		return nil
	}

	var keywords []string
	for _, tok := range strings.Fields(query) {
		tok = nonWordRegex.ReplaceAllString(tok, "")
		if tok == "" {
			continue
		}
		if _, stop := commonWords[tok]; stop {
			continue
		}
		keywords = append(keywords, tok)
	}
	return keywords
}
