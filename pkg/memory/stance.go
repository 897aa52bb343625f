package memory

import (
	"regexp"
	"strings"
)

// Stopwords excluded from overlap so it measures content, not glue.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "to": true, "of": true, "in": true,
	"on": true, "at": true, "and": true, "or": true, "it": true, "this": true,
	"that": true, "with": true, "for": true, "as": true, "by": true,
}

var negations = map[string]bool{
	"not": true, "never": true, "no": true, "isnt": true, "arent": true,
	"wasnt": true, "werent": true, "cannot": true, "cant": true, "dont": true,
	"doesnt": true, "didnt": true, "wont": true,
}

// antonymPairs flag a stance flip when one side of a pair appears in each
// statement.
var antonymPairs = [][2]string{
	{"safe", "dangerous"}, {"safer", "riskier"}, {"cheap", "expensive"},
	{"cheaper", "costlier"}, {"better", "worse"}, {"more", "less"},
	{"always", "never"}, {"true", "false"}, {"rising", "falling"},
	{"increase", "decrease"}, {"supports", "contradicts"},
}

// comparativeRe captures "<subject> <comparative>-than <object>" claims so
// that swapping subject and object is recognized as a flip.
var comparativeRe = regexp.MustCompile(`(\w+)\s+(?:is|are|was|were|remains?|stays?)\s+(?:\w+\s+)?(\w+er)\s+than\s+(\w+)`)

// StanceSimilarity estimates how compatible two statements are, in [0,1].
// High token overlap with a detected polarity flip (negation parity,
// comparative subject/object swap, antonym pair) scores low; unrelated
// statements score near 1 because they cannot contradict each other.
func StanceSimilarity(a, b string) float64 {
	overlap := tokenOverlap(a, b)
	if !stanceFlipped(a, b) {
		return 1 - overlap*0.1
	}
	sim := 1 - overlap
	if sim < 0 {
		sim = 0
	}
	return sim
}

// Divergence is 1 − StanceSimilarity, clamped to [0,1].
func Divergence(a, b string) float64 {
	d := 1 - StanceSimilarity(a, b)
	if d < 0 {
		return 0
	}
	if d > 1 {
		return 1
	}
	return d
}

func stanceFlipped(a, b string) bool {
	return negationParityDiffers(a, b) || comparativeSwapped(a, b) || antonymFlip(a, b)
}

func tokenOverlap(a, b string) float64 {
	sa, sb := contentTokens(a), contentTokens(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for tok := range sa {
		if sb[tok] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

func contentTokens(s string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range tokens(s) {
		if !stopwords[tok] && !negations[tok] {
			out[tok] = true
		}
	}
	return out
}

func tokens(s string) []string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "'", "")
	return strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}

func negationParityDiffers(a, b string) bool {
	return countNegations(a)%2 != countNegations(b)%2
}

func countNegations(s string) int {
	n := 0
	for _, tok := range tokens(s) {
		if negations[tok] {
			n++
		}
	}
	return n
}

func comparativeSwapped(a, b string) bool {
	ma := comparativeRe.FindStringSubmatch(strings.ToLower(a))
	mb := comparativeRe.FindStringSubmatch(strings.ToLower(b))
	if ma == nil || mb == nil {
		return false
	}
	// Same comparative claim with subject and object exchanged.
	return ma[2] == mb[2] && ma[1] == mb[3] && ma[3] == mb[1]
}

func antonymFlip(a, b string) bool {
	ta, tb := contentTokens(a), contentTokens(b)
	for _, pair := range antonymPairs {
		if (ta[pair[0]] && tb[pair[1]]) || (ta[pair[1]] && tb[pair[0]]) {
			return true
		}
	}
	return false
}
