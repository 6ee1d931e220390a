// Package classifier labels incoming queries so the router can decide
// between a canned reply and the retrieval pipeline.
package classifier

import (
	"regexp"
	"strings"
)

// Label is the routing class of a query.
type Label string

const (
	// Intent marks short conversational acts: greetings, thanks, farewells.
	Intent Label = "intent"
	// DataQuery marks everything else. Whether the answer ends up grounded
	// in documents is decided later by the relevance gate, not here:
	// keyword classification of "does this need documents" is unreliable,
	// so the pipeline tries retrieval and validates post-hoc.
	DataQuery Label = "data_query"
)

// intentPatterns match conversational acts in French and English.
var intentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bbonjour\b`),
	regexp.MustCompile(`\bsalut\b`),
	regexp.MustCompile(`\bhello\b`),
	regexp.MustCompile(`\bhi\b`),
	regexp.MustCompile(`\bhey\b`),
	regexp.MustCompile(`\bmerci\b`),
	regexp.MustCompile(`\bthanks?\b`),
	regexp.MustCompile(`\bthank you\b`),
	regexp.MustCompile(`\bau revoir\b`),
	regexp.MustCompile(`\bbye\b`),
	regexp.MustCompile(`\bgoodbye\b`),
	regexp.MustCompile(`\bbonne (journ[ée]e|soir[ée]e)\b`),
}

// interrogativeMarkers downgrade an intent match: a greeting phrased as a
// question ("hi, what is ...?") must reach the retrieval pipeline, not a
// canned reply.
var interrogativeMarkers = []string{
	"?", "what", "how", "why", "when", "where", "which", "who",
	"quoi", "comment", "pourquoi", "quand", "combien", "quel", "quelle",
	"c'est quoi", "qu'est-ce",
}

// Classify labels a query as Intent or DataQuery. Pure function: identical
// input always yields the identical label.
func Classify(query string) Label {
	text := strings.ToLower(strings.TrimSpace(query))
	if text == "" {
		return DataQuery
	}

	matched := false
	for _, p := range intentPatterns {
		if p.MatchString(text) {
			matched = true
			break
		}
	}
	if !matched {
		return DataQuery
	}

	for _, marker := range interrogativeMarkers {
		if strings.Contains(text, marker) {
			return DataQuery
		}
	}
	return Intent
}
