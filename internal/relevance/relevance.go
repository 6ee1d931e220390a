// Package relevance implements the gate deciding whether retrieved
// documents are actually usable as context for a query. It is a cheap,
// explainable check: handing the generator irrelevant context produces
// confidently wrong "grounded" answers, so ambiguity resolves to rejection
// at the default threshold and to acceptance for terse queries.
package relevance

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"querybot/internal/models"
)

const (
	// DefaultThreshold is the token-overlap ratio a document must exceed.
	DefaultThreshold = 0.3
	// shortQueryThreshold applies to queries of at most three tokens and to
	// maintenance-domain queries. Short queries naturally share few tokens
	// with any document; the default threshold would always reject them.
	shortQueryThreshold = 0.1
	shortQueryTokens    = 3
	// minContentLength filters boilerplate and near-empty chunks.
	minContentLength = 20
	// topCandidates bounds how many candidates are examined, in retrieval
	// order; they are not rescored.
	topCandidates = 3
)

var (
	tokenPattern = regexp.MustCompile(`[a-z0-9àâäéèêëîïôöùûüç]+`)

	// datePatterns cover numeric dates (01/05/2024, 2024-05-01) and
	// month-name dates in French and English (1 mai 2024, May 1, 2024).
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
		regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
		regexp.MustCompile(`\b\d{1,2} (janvier|février|mars|avril|mai|juin|juillet|août|septembre|octobre|novembre|décembre) \d{4}\b`),
		regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december) \d{1,2},? \d{4}\b`),
	}

	maintenanceKeywords = []string{
		"maintenance", "entretien", "panne", "réparation", "révision",
		"capteur", "alarme", "intervention", "incident", "vidange",
	}
)

// IsRelevant reports whether the candidate set is usable as context for the
// query. Candidates are examined in retrieval order; the first one passing
// all checks accepts the whole set.
func IsRelevant(query string, docs []models.Document, baseThreshold float64) bool {
	if len(docs) == 0 {
		return false
	}

	queryLower := strings.ToLower(query)
	queryTokens := tokenize(queryLower)
	dates := extractDates(queryLower)

	threshold := effectiveThreshold(queryTokens, queryLower, baseThreshold)

	limit := topCandidates
	if len(docs) < limit {
		limit = len(docs)
	}
	for i := 0; i < limit; i++ {
		doc := docs[i]
		content := strings.ToLower(doc.Content)

		overlap := overlapRatio(queryTokens, tokenize(content))
		dateOK := matchesDates(dates, content)
		lengthOK := len(strings.TrimSpace(doc.Content)) > minContentLength

		log.Debug().
			Str("source", doc.Source()).
			Float64("overlap", overlap).
			Float64("threshold", threshold).
			Bool("date_match", dateOK).
			Bool("length_ok", lengthOK).
			Msg("Relevance check")

		if overlap > threshold && dateOK && lengthOK {
			return true
		}
	}
	return false
}

// effectiveThreshold lowers the overlap bar for terse or maintenance-domain
// queries; a deliberate recall-over-precision bias.
func effectiveThreshold(queryTokens []string, queryLower string, base float64) float64 {
	if len(queryTokens) <= shortQueryTokens || containsMaintenanceKeyword(queryLower) {
		return shortQueryThreshold
	}
	return base
}

func tokenize(text string) []string {
	return tokenPattern.FindAllString(text, -1)
}

// overlapRatio is |query ∩ doc| / |query| over unique query tokens.
func overlapRatio(queryTokens, docTokens []string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	docSet := make(map[string]bool, len(docTokens))
	for _, t := range docTokens {
		docSet[t] = true
	}
	unique := make(map[string]bool, len(queryTokens))
	matched := 0
	for _, t := range queryTokens {
		if unique[t] {
			continue
		}
		unique[t] = true
		if docSet[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(unique))
}

func extractDates(text string) []string {
	var dates []string
	for _, p := range datePatterns {
		dates = append(dates, p.FindAllString(text, -1)...)
	}
	return dates
}

// matchesDates is true when the query carried no dates, or when at least one
// extracted date appears verbatim in the document.
func matchesDates(dates []string, content string) bool {
	if len(dates) == 0 {
		return true
	}
	for _, d := range dates {
		if strings.Contains(content, d) {
			return true
		}
	}
	return false
}

func containsMaintenanceKeyword(text string) bool {
	for _, kw := range maintenanceKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
