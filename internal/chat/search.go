package chat

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// Hit is one ranked summary.
type Hit struct {
	Fingerprint string
	Summary     string
	Score       float64
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "how": true, "in": true, "is": true, "it": true,
	"of": true, "on": true, "or": true, "that": true, "the": true, "this": true, "to": true,
	"was": true, "what": true, "which": true, "who": true, "with": true, "any": true,
	"there": true, "trial": true, "trials": true, "study": true, "studies": true,
	"show": true, "me": true, "list": true, "all": true, "do": true, "does": true,
}

// terms lowercases text and splits it into indexable words.
func terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Rank scores summaries by term overlap with query, weighting rare terms higher,
// and returns the best k with a positive score.
func Rank(query string, summaries map[string]string, k int) []Hit {
	queryTerms := terms(query)
	if len(queryTerms) == 0 || len(summaries) == 0 {
		return nil
	}

	tf := make(map[string]map[string]int, len(summaries))
	df := make(map[string]int)
	for fp, summary := range summaries {
		counts := make(map[string]int)
		for _, term := range terms(summary) {
			counts[term]++
		}
		tf[fp] = counts
		for term := range counts {
			df[term]++
		}
	}

	n := float64(len(summaries))
	var hits []Hit
	for fp, counts := range tf {
		var score float64
		for _, q := range queryTerms {
			if c := counts[q]; c > 0 {
				idf := math.Log(1 + n/float64(df[q]))
				score += (1 + math.Log(float64(c))) * idf
			}
		}
		if score > 0 {
			hits = append(hits, Hit{Fingerprint: fp, Summary: summaries[fp], Score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Fingerprint < hits[j].Fingerprint
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
