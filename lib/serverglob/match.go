// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package serverglob

// Match reports whether host matches pattern. '*' matches any run of
// characters (including none), '?' matches exactly one character, and
// every other byte matches itself. Matching is case-sensitive; Matrix
// server names are already lowercased at the boundary.
func Match(pattern, host string) bool {
	// Iterative glob matching with single-star backtracking. When a
	// '*' is seen, remember its position and the host position; on a
	// later mismatch, resume after the star with the host advanced by
	// one. Linear in len(pattern)+len(host) for patterns with one
	// star, quadratic worst case — fine for ACL-sized inputs.
	patternIndex, hostIndex := 0, 0
	starIndex, starHost := -1, 0

	for hostIndex < len(host) {
		switch {
		case patternIndex < len(pattern) && (pattern[patternIndex] == '?' || pattern[patternIndex] == host[hostIndex]):
			patternIndex++
			hostIndex++
		case patternIndex < len(pattern) && pattern[patternIndex] == '*':
			starIndex = patternIndex
			starHost = hostIndex
			patternIndex++
		case starIndex >= 0:
			patternIndex = starIndex + 1
			starHost++
			hostIndex = starHost
		default:
			return false
		}
	}

	for patternIndex < len(pattern) && pattern[patternIndex] == '*' {
		patternIndex++
	}
	return patternIndex == len(pattern)
}

// MatchAny reports whether host matches any pattern in the list.
// Returns true on the first match.
func MatchAny(patterns []string, host string) bool {
	for _, pattern := range patterns {
		if Match(pattern, host) {
			return true
		}
	}
	return false
}
