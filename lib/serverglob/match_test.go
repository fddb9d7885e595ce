// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package serverglob

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		host    string
		want    bool
	}{
		{"example.org", "example.org", true},
		{"example.org", "example.com", false},
		{"*", "anything.at.all", true},
		{"*.example.org", "matrix.example.org", true},
		{"*.example.org", "example.org", false},
		{"*.example.org", "a.b.example.org", true},
		{"example.*", "example.org", true},
		{"1.2.3.?", "1.2.3.4", true},
		{"1.2.3.?", "1.2.3.45", false},
		{"e?il.example", "evil.example", true},
		{"e?il.example", "eil.example", false},
		{"*evil*", "very.evil.example", true},
		{"", "", true},
		{"", "x", false},
		{"**", "x", true},
		{"a*b*c", "aXXbYYc", true},
		{"a*b*c", "aXXbYY", false},
	}
	for _, test := range tests {
		if got := Match(test.pattern, test.host); got != test.want {
			t.Errorf("Match(%q, %q) = %v, want %v", test.pattern, test.host, got, test.want)
		}
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"*.banned.example", "evil.example"}
	if !MatchAny(patterns, "evil.example") {
		t.Error("expected exact pattern to match")
	}
	if !MatchAny(patterns, "sub.banned.example") {
		t.Error("expected wildcard pattern to match")
	}
	if MatchAny(patterns, "good.example") {
		t.Error("expected no match for unrelated host")
	}
	if MatchAny(nil, "good.example") {
		t.Error("empty pattern list must match nothing")
	}
}
