// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package match compiles the restricted-glob dialect used to scope
// per-bundle property overrides and uninstall-by-location rules.
//
// The dialect recognizes three wildcard forms and nothing else:
//
//	?   matches exactly one character that is not a path separator
//	**  matches any sequence of characters, including path separators
//	*   matches any sequence of characters that is not a path separator
//
// Every other character, including regular-expression metacharacters, is
// matched literally.
package match

import (
	"regexp"
	"strings"
)

// Pattern is a compiled restricted glob. Zero value is not usable; build
// one with Compile.
type Pattern struct {
	source string
	re     *regexp.Regexp
	rank   int
}

// Compile translates a restricted glob into a Pattern. Compile never fails:
// every input character is either a recognized wildcard or an escapable
// literal.
func Compile(pattern string) *Pattern {
	var b strings.Builder
	b.WriteByte('^')

	literals := 0
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch {
		case runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '*':
			b.WriteString(".*")
			i++
		case runes[i] == '*':
			b.WriteString("[^/]*")
		case runes[i] == '?':
			b.WriteString("[^/]")
		default:
			lit := string(runes[i])
			quoted := regexp.QuoteMeta(lit)
			b.WriteString(quoted)
			if quoted == lit {
				literals++
			}
		}
	}
	b.WriteByte('$')

	return &Pattern{
		source: pattern,
		re:     regexp.MustCompile(b.String()),
		rank:   literals,
	}
}

// String returns the original, uncompiled pattern.
func (p *Pattern) String() string {
	return p.source
}

// Rank is the number of characters in the original pattern that are neither
// wildcards nor regular-expression metacharacters (which Compile escapes).
// Higher rank means a more specific pattern.
func (p *Pattern) Rank() int {
	return p.rank
}

// Match reports whether path satisfies the pattern.
func (p *Pattern) Match(path string) bool {
	return p.re.MatchString(path)
}

// Less orders patterns by descending rank, then lexicographically by their
// original source for determinism. It defines a total, stable order usable
// for sorting a slice of *Pattern.
func Less(a, b *Pattern) bool {
	if a.rank != b.rank {
		return a.rank > b.rank
	}
	return a.source < b.source
}

// Best returns the subset of candidates whose pattern matches path and
// which share the highest rank among those matches. An empty result means
// no pattern matched; a result with more than one element means the match
// is ambiguous (equal-rank patterns disagree) and the caller should treat
// that as "no override applies" per the scoped-override resolution rule.
func Best(candidates []*Pattern, path string) []*Pattern {
	var best []*Pattern
	bestRank := -1
	for _, c := range candidates {
		if !c.Match(path) {
			continue
		}
		switch {
		case c.rank > bestRank:
			bestRank = c.rank
			best = []*Pattern{c}
		case c.rank == bestRank:
			best = append(best, c)
		}
	}
	return best
}
