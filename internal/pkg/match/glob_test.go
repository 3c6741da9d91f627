// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package match

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestCompileMatch(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*.jar", "foo.jar", true},
		{"*.jar", "subdir/bar.jar", false},
		{"**/*.jar", "subdir/bar.jar", true},
		{"a-?.jar", "a-b.jar", true},
		{"a-?.jar", "a-bb.jar", false},
		{"org.osgi.util.*.jar", "org.osgi.util.tracker.jar", true},
		{"literal[1].txt", "literal[1].txt", true},
		{"literal[1].txt", "literalX.txt", false},
	}

	for _, tt := range tests {
		p := Compile(tt.pattern)
		assert.Equal(t, p.Match(tt.path), tt.want, "pattern=%q path=%q", tt.pattern, tt.path)
	}
}

func TestRank(t *testing.T) {
	// Rank counts only characters that are neither wildcards nor escaped
	// regexp metacharacters: the '.' in ".jar" does not count.
	assert.Equal(t, Compile("*.jar").Rank(), 3)
	assert.Equal(t, Compile("**").Rank(), 0)
	assert.Equal(t, Compile("a-?.jar").Rank(), 5)
}

func TestLess(t *testing.T) {
	high := Compile("org.osgi.util.*.jar")
	low := Compile("*.jar")
	assert.Assert(t, Less(high, low))
	assert.Assert(t, !Less(low, high))

	// Equal rank: lexicographic tie-break.
	a := Compile("a-?.jar")
	b := Compile("b-?.jar")
	assert.Equal(t, a.Rank(), b.Rank())
	assert.Assert(t, Less(a, b))
}

func TestBestAmbiguous(t *testing.T) {
	// Equal literal counts on both patterns applied to "a-b.jar" is
	// ambiguous — Best must return both, signaling "apply neither".
	p1 := Compile("a-?.jar")
	p2 := Compile("a-b.?ar")
	assert.Equal(t, p1.Rank(), p2.Rank())

	best := Best([]*Pattern{p1, p2}, "a-b.jar")
	assert.Equal(t, len(best), 2)
}

func TestBestSingleWinner(t *testing.T) {
	// More literals wins.
	general := Compile("*.jar")
	specific := Compile("org.osgi.util.*.jar")

	best := Best([]*Pattern{general, specific}, "org.osgi.util.tracker.jar")
	assert.Equal(t, len(best), 1)
	assert.Equal(t, best[0], specific)
}

func TestBestNoMatch(t *testing.T) {
	p := Compile("*.jar")
	best := Best([]*Pattern{p}, "subdir/bar.jar")
	assert.Equal(t, len(best), 0)
}
