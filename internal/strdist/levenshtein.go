// SPDX-License-Identifier: MPL-2.0

// Package strdist provides the edit-distance suggestion helper shared by
// the configuration loader's TargetNotFound diagnostics and the CLI
// dispatcher's UnknownCommand suggestion, both of which need
// "closest match by Levenshtein distance" against a candidate set.
package strdist

// Levenshtein computes the edit distance between a and b using the
// classic single-row dynamic-programming recurrence.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = minOf3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func minOf3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// Closest returns the candidate with the smallest Levenshtein distance to
// target, provided that distance is <= maxDistance. Returns ("", false)
// when candidates is empty or every candidate exceeds maxDistance.
func Closest(target string, candidates []string, maxDistance int) (string, bool) {
	best := ""
	bestDist := maxDistance + 1
	for _, c := range candidates {
		d := Levenshtein(target, c)
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	if bestDist > maxDistance {
		return "", false
	}
	return best, true
}
