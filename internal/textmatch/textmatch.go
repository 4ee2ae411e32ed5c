// Package textmatch provides local, deterministic text-similarity and
// quality heuristics. The scoring engine uses them as the degraded-mode
// stand-ins when the AI collaborators are unavailable.
package textmatch

import (
	"math"
	"unicode"
)

// Normalize casefolds, strips punctuation and collapses whitespace.
func Normalize(s string) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range []rune(s) {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r):
			// skip
		default:
			if space && len(out) > 0 {
				out = append(out, ' ')
			}
			space = false
			out = append(out, unicode.ToLower(r))
		}
	}
	return string(out)
}

// Levenshtein computes edit distance (insertion, deletion, substitution
// cost 1).
func Levenshtein(a, b string) int {
	ar := []rune(a)
	br := []rune(b)
	n, m := len(ar), len(br)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}
	dp := make([]int, m+1)
	for j := 0; j <= m; j++ {
		dp[j] = j
	}
	for i := 1; i <= n; i++ {
		prev := dp[0]
		dp[0] = i
		for j := 1; j <= m; j++ {
			tmp := dp[j]
			cost := 0
			if ar[i-1] != br[j-1] {
				cost = 1
			}
			ins := dp[j] + 1
			del := dp[j-1] + 1
			sub := prev + cost
			dp[j] = min3(ins, del, sub)
			prev = tmp
		}
	}
	return dp[m]
}

// Ratio returns a 0..100 similarity percentage of the normalized inputs,
// derived from edit distance over the longer length. Empty input on either
// side scores 0.
func Ratio(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	la, lb := len([]rune(na)), len([]rune(nb))
	longer := la
	if lb > longer {
		longer = lb
	}
	d := Levenshtein(na, nb)
	if d >= longer {
		return 0
	}
	return round2(float64(longer-d) / float64(longer) * 100)
}

// LengthHeuristic is the no-collaborator quality estimate: a coarse 10..80
// percent scaled by answer length, matching how evaluation degrades when no
// model is reachable.
func LengthHeuristic(answer string) float64 {
	n := len(Normalize(answer))
	if n == 0 {
		return 0
	}
	if n > 800 {
		n = 800
	}
	pct := float64(n)/800*70 + 10
	if pct > 80 {
		pct = 80
	}
	return round2(pct)
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
