// Copyright Dasan Software Lab, 2026. All rights reserved.

// Package similarity scores free-text bibliographic fields against catalog
// candidates using a normalized token-set ratio.
package similarity

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Weights for the composite catalog score.
const (
	TitleWeight  = 0.7
	AuthorWeight = 0.3
)

// TokenSetRatio returns a similarity in [0,1] that is insensitive to token
// order and to tokens shared by both strings. Both inputs are lowercased
// and split on whitespace; the score is the best normalized edit-distance
// ratio among the sorted intersection and the two sorted unions.
func TokenSetRatio(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)

	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	var inter, diffA, diffB []string
	for tok := range ta {
		if tb[tok] {
			inter = append(inter, tok)
		} else {
			diffA = append(diffA, tok)
		}
	}
	for tok := range tb {
		if !ta[tok] {
			diffB = append(diffB, tok)
		}
	}
	sort.Strings(inter)
	sort.Strings(diffA)
	sort.Strings(diffB)

	base := strings.Join(inter, " ")
	joinedA := joinNonEmpty(base, strings.Join(diffA, " "))
	joinedB := joinNonEmpty(base, strings.Join(diffB, " "))

	best := Ratio(base, joinedA)
	if s := Ratio(base, joinedB); s > best {
		best = s
	}
	if s := Ratio(joinedA, joinedB); s > best {
		best = s
	}
	return best
}

// Ratio returns the normalized edit-distance similarity of two strings in
// [0,1]. Two empty strings are identical; one empty side scores 0.
func Ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	la := len([]rune(a))
	lb := len([]rune(b))
	longer := la
	if lb > longer {
		longer = lb
	}
	if longer == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longer)
}

// Composite combines the title and author scores with the 70/30 weighting
// used for catalog candidate ranking. When the query author is empty the
// author contribution is zero.
func Composite(queryTitle, queryAuthor, candTitle, candAuthor string) float64 {
	titleScore := TokenSetRatio(queryTitle, candTitle)
	authorScore := 0.0
	if strings.TrimSpace(queryAuthor) != "" {
		authorScore = TokenSetRatio(queryAuthor, candAuthor)
	}
	return TitleWeight*titleScore + AuthorWeight*authorScore
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[tok] = true
	}
	return set
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
