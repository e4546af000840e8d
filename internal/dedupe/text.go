// Package dedupe collapses near-identical risk statements into canonical
// risk entities. Clustering is deterministic, transitive within a run,
// and idempotent across runs.
package dedupe

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// stopwords are stripped before similarity comparison so boilerplate
// ("the model may ...") does not inflate scores.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "could": true, "for": true,
	"from": true, "has": true, "have": true, "in": true, "is": true,
	"it": true, "its": true, "may": true, "might": true, "of": true,
	"on": true, "or": true, "such": true, "than": true, "that": true,
	"the": true, "this": true, "to": true, "when": true, "which": true,
	"will": true, "with": true,
}

// tokenize canonicalizes text (NFKC normalization, case fold, whitespace
// fold, stopword strip) and returns the remaining token set. A cases.Caser
// is stateful, so one is created per call.
func tokenize(text string) map[string]bool {
	folded := cases.Fold().String(norm.NFKC.String(text))

	tokens := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(folded, func(r rune) bool {
		return !isWordRune(r)
	}) {
		if stopwords[tok] {
			continue
		}
		tokens[tok] = true
	}
	return tokens
}

func isWordRune(r rune) bool {
	return r == '-' || r == '_' ||
		(r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 127
}

// Similarity returns the token-set Jaccard similarity of two texts,
// bounded in [0,1]. Two empty texts are not considered similar.
func Similarity(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter := 0
	for tok := range ta {
		if tb[tok] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}
