package strata

import "strings"

// QueryVariant labels how an expanded query was derived.
type QueryVariant struct {
	Text string
	Kind string // "verbatim", "stripped", "synonyms"
}

// stopwords removed by the stripped variant. Deliberately small; the goal is
// a denser phrasing of the same question, not linguistic completeness.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "can": {}, "do": {}, "does": {}, "for": {}, "how": {}, "i": {},
	"in": {}, "is": {}, "it": {}, "my": {}, "of": {}, "on": {}, "or": {},
	"our": {}, "should": {}, "that": {}, "the": {}, "this": {}, "to": {},
	"use": {}, "we": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"why": {}, "with": {}, "you": {},
}

// synonyms maps software-domain terms onto a canonical alternative. Fixed
// table so expansion stays deterministic.
var synonyms = map[string]string{
	"bug":      "defect",
	"config":   "configuration",
	"db":       "database",
	"dir":      "directory",
	"docs":     "documentation",
	"endpoint": "url",
	"env":      "environment",
	"error":    "failure",
	"fix":      "resolve",
	"function": "method",
	"install":  "setup",
	"repo":     "repository",
	"server":   "service",
	"settings": "configuration",
	"test":     "verify",
	"token":    "credential",
}

// ExpandQuery builds up to max deterministic variants of query: the original
// verbatim, a stopword-stripped form, and a synonym-substituted form. Variants
// that collapse to an existing or empty text are dropped, so fewer than max
// may come back.
func ExpandQuery(query string, max int) []QueryVariant {
	query = strings.TrimSpace(query)
	if query == "" || max < 1 {
		return nil
	}

	variants := []QueryVariant{{Text: query, Kind: "verbatim"}}
	seen := map[string]struct{}{strings.ToLower(query): {}}

	add := func(text, kind string) {
		text = strings.TrimSpace(text)
		if text == "" || len(variants) >= max {
			return
		}
		lower := strings.ToLower(text)
		if _, dup := seen[lower]; dup {
			return
		}
		seen[lower] = struct{}{}
		variants = append(variants, QueryVariant{Text: text, Kind: kind})
	}

	add(stripStopwords(query), "stripped")
	add(substituteSynonyms(query), "synonyms")

	return variants
}

func stripStopwords(query string) string {
	fields := strings.Fields(query)
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopwords[strings.ToLower(f)]; stop {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

func substituteSynonyms(query string) string {
	fields := strings.Fields(query)
	changed := false
	for i, f := range fields {
		if alt, ok := synonyms[strings.ToLower(f)]; ok {
			fields[i] = alt
			changed = true
		}
	}
	if !changed {
		return ""
	}
	return strings.Join(fields, " ")
}
