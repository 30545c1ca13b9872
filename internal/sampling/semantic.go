package sampling

import (
	"strings"
	"unicode"

	"github.com/signalnine/toolsgen/internal/toolspec"
)

// DefaultClusterThreshold is the Jaccard overlap at which two tools share a cluster.
const DefaultClusterThreshold = 0.2

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true, "into": true,
	"that": true, "this": true, "are": true, "get": true, "set": true, "all": true,
	"its": true, "use": true, "given": true, "using": true, "list": true, "one": true,
}

// Tokens returns the lowercase content words of a tool's name and description.
func Tokens(t *toolspec.Tool) map[string]bool {
	out := make(map[string]bool)
	for _, w := range splitWords(t.Name + " " + t.Description) {
		w = strings.ToLower(w)
		if len(w) < 3 || stopwords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

// splitWords breaks on non-alphanumerics and camelCase boundaries.
func splitWords(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Clusters groups tools by token overlap. A tool joins the first cluster that
// holds a member at or above threshold, otherwise it opens a new cluster.
// The result lists tool indices per cluster in input order.
func Clusters(tools []*toolspec.Tool, threshold float64) [][]int {
	tokens := make([]map[string]bool, len(tools))
	for i, t := range tools {
		tokens[i] = Tokens(t)
	}
	var clusters [][]int
	for i := range tools {
		placed := false
		for c := range clusters {
			for _, j := range clusters[c] {
				if jaccard(tokens[i], tokens[j]) >= threshold {
					clusters[c] = append(clusters[c], i)
					placed = true
					break
				}
			}
			if placed {
				break
			}
		}
		if !placed {
			clusters = append(clusters, []int{i})
		}
	}
	return clusters
}

type semanticStrategy struct {
	threshold float64
}

func (semanticStrategy) Name() string { return Semantic }

// Sample spreads the subset across clusters round-robin so the picked tools
// cover as many topics as possible. With a single cluster it is uniform.
func (s semanticStrategy) Sample(tools []*toolspec.Tool, k int, seed int64, callIndex int) ([]*toolspec.Tool, error) {
	if err := checkSize(tools, k); err != nil {
		return nil, err
	}
	rng := NewRand(seed, callIndex)
	clusters := Clusters(tools, s.threshold)
	if len(clusters) < 2 {
		return pickRandom(tools, k, rng), nil
	}

	rng.Shuffle(len(clusters), func(i, j int) { clusters[i], clusters[j] = clusters[j], clusters[i] })
	for _, c := range clusters {
		rng.Shuffle(len(c), func(i, j int) { c[i], c[j] = c[j], c[i] })
	}

	out := make([]*toolspec.Tool, 0, k)
	for depth := 0; len(out) < k; depth++ {
		for _, c := range clusters {
			if depth < len(c) && len(out) < k {
				out = append(out, tools[c[depth]])
			}
		}
	}
	return out, nil
}
