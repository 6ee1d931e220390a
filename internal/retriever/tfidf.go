package retriever

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"querybot/internal/models"
)

// tfidfIndex is an immutable TF-IDF snapshot of the corpus. It is rebuilt
// wholesale after index mutations and swapped in atomically, so scoring
// never observes a half-updated structure.
type tfidfIndex struct {
	docs    []models.Document
	vectors []map[string]float64 // l2-normalized term weights per document
	idf     map[string]float64
}

var termPattern = regexp.MustCompile(`[a-z0-9àâäéèêëîïôöùûüç]+`)

// stopwords covers the high-frequency English and French terms that would
// otherwise dominate lexical scores.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "is": true, "are": true, "was": true, "it": true,
	"for": true, "on": true, "with": true, "this": true, "that": true,
	"le": true, "la": true, "les": true, "un": true, "une": true, "des": true,
	"du": true, "de": true, "et": true, "ou": true, "est": true, "sont": true,
	"dans": true, "sur": true, "pour": true, "avec": true, "ce": true,
	"cette": true, "au": true, "aux": true, "par": true,
}

func terms(text string) []string {
	raw := termPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if !stopwords[t] {
			out = append(out, t)
		}
	}
	return out
}

// buildTFIDF computes the snapshot for a corpus.
func buildTFIDF(docs []models.Document) *tfidfIndex {
	n := len(docs)
	df := make(map[string]int)
	termCounts := make([]map[string]int, n)

	for i, doc := range docs {
		counts := make(map[string]int)
		for _, t := range terms(doc.Content) {
			counts[t]++
		}
		termCounts[i] = counts
		for t := range counts {
			df[t]++
		}
	}

	idf := make(map[string]float64, len(df))
	for t, d := range df {
		// Smoothed idf keeps terms present in every document from zeroing out.
		idf[t] = math.Log(float64(1+n)/float64(1+d)) + 1
	}

	vectors := make([]map[string]float64, n)
	for i, counts := range termCounts {
		vec := make(map[string]float64, len(counts))
		var norm float64
		for t, c := range counts {
			w := float64(c) * idf[t]
			vec[t] = w
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for t := range vec {
				vec[t] /= norm
			}
		}
		vectors[i] = vec
	}

	return &tfidfIndex{docs: docs, vectors: vectors, idf: idf}
}

type scoredDoc struct {
	doc   models.Document
	score float64
}

// search scores the query against every document and returns the top k with
// strictly positive scores, best first.
func (ix *tfidfIndex) search(query string, k int) []models.Document {
	queryTerms := terms(query)
	if len(queryTerms) == 0 || len(ix.docs) == 0 {
		return nil
	}

	counts := make(map[string]int, len(queryTerms))
	for _, t := range queryTerms {
		counts[t]++
	}
	queryVec := make(map[string]float64, len(counts))
	var norm float64
	for t, c := range counts {
		idf, ok := ix.idf[t]
		if !ok {
			continue
		}
		w := float64(c) * idf
		queryVec[t] = w
		norm += w * w
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	for t := range queryVec {
		queryVec[t] /= norm
	}

	scored := make([]scoredDoc, 0, len(ix.docs))
	for i, vec := range ix.vectors {
		var score float64
		for t, qw := range queryVec {
			if dw, ok := vec[t]; ok {
				score += qw * dw
			}
		}
		if score > 0 {
			scored = append(scored, scoredDoc{doc: ix.docs[i], score: score})
		}
	}
	sort.SliceStable(scored, func(a, b int) bool { return scored[a].score > scored[b].score })

	if k > len(scored) {
		k = len(scored)
	}
	out := make([]models.Document, 0, k)
	for _, s := range scored[:k] {
		out = append(out, s.doc)
	}
	return out
}
