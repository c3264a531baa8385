package learning

import "strings"

// criticalPrefixes are the label prefixes whose presence in a pattern
// fingerprint gates or boosts similarity, per §4.9.
var criticalPrefixes = []string{"system:", "container:", "remediation_host:"}

// Similarity scores how well patternFP (a stored pattern's fingerprint)
// matches alertFP (the incoming alert's fingerprint), per §4.9:
//
//   - if the pattern's critical-label parts are not all present in the
//     alert, similarity is clamped to 0.30;
//   - if the pattern's parts are a subset of the alert's, similarity is
//     min(0.95, 0.70 + |pattern parts|/10);
//   - otherwise, Jaccard similarity, boosted by 0.15 when the pattern's
//     critical-label parts (if any) are all present in the alert.
func Similarity(alertFP, patternFP string) float64 {
	alertParts := splitSet(alertFP)
	patternParts := splitSet(patternFP)
	if len(alertParts) == 0 || len(patternParts) == 0 {
		return 0
	}

	patternCritical := criticalParts(patternParts)
	if len(patternCritical) > 0 && !allPresent(patternCritical, alertParts) {
		return 0.3
	}

	if isSubset(patternParts, alertParts) {
		score := 0.70 + float64(len(patternParts))/10
		if score > 0.95 {
			score = 0.95
		}
		return score
	}

	jaccard := float64(len(intersect(alertParts, patternParts))) / float64(len(union(alertParts, patternParts)))
	if len(patternCritical) > 0 && allPresent(patternCritical, alertParts) {
		jaccard += 0.15
	}
	if jaccard > 1.0 {
		jaccard = 1.0
	}
	return jaccard
}

func splitSet(fp string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, part := range strings.Split(fp, "|") {
		if part != "" {
			set[part] = struct{}{}
		}
	}
	return set
}

func criticalParts(parts map[string]struct{}) []string {
	var out []string
	for p := range parts {
		for _, prefix := range criticalPrefixes {
			if strings.HasPrefix(p, prefix) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func allPresent(needles []string, haystack map[string]struct{}) bool {
	for _, n := range needles {
		if _, ok := haystack[n]; !ok {
			return false
		}
	}
	return true
}

func isSubset(sub, super map[string]struct{}) bool {
	for p := range sub {
		if _, ok := super[p]; !ok {
			return false
		}
	}
	return true
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for p := range a {
		if _, ok := b[p]; ok {
			out[p] = struct{}{}
		}
	}
	return out
}

func union(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for p := range a {
		out[p] = struct{}{}
	}
	for p := range b {
		out[p] = struct{}{}
	}
	return out
}
