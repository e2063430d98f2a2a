package matching

import "strings"

// NormalizeInterests case-folds and trims each interest, drops empty entries
// and duplicates, and keeps first-occurrence order. The result is never nil.
func NormalizeInterests(interests []string) []string {
	out := make([]string, 0, len(interests))
	seen := make(map[string]struct{}, len(interests))
	for _, in := range interests {
		in = strings.ToLower(strings.TrimSpace(in))
		if in == "" {
			continue
		}
		if _, dup := seen[in]; dup {
			continue
		}
		seen[in] = struct{}{}
		out = append(out, in)
	}
	return out
}

// CommonInterests returns the case-folded interests present in both sets, in
// the order they appear in a.
func CommonInterests(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, in := range b {
		set[strings.ToLower(strings.TrimSpace(in))] = struct{}{}
	}

	common := make([]string, 0)
	for _, in := range NormalizeInterests(a) {
		if _, ok := set[in]; ok {
			common = append(common, in)
		}
	}
	return common
}

// OverlapScore is the number of case-folded interests the two sets share.
func OverlapScore(a, b []string) int {
	return len(CommonInterests(a, b))
}

// BestOverlap picks the candidate sharing the most interests with mine.
// Ties go to the earliest candidate and zero scores never win. ok is false
// when no candidate shares anything.
func BestOverlap(mine []string, candidates []Candidate) (best Candidate, common []string, ok bool) {
	bestScore := 0
	for _, c := range candidates {
		shared := CommonInterests(mine, c.Interests)
		if len(shared) > bestScore {
			bestScore = len(shared)
			best = c
			common = shared
			ok = true
		}
	}
	return best, common, ok
}
