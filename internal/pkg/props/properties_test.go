// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package props

import (
	"bytes"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

func TestLoadBasic(t *testing.T) {
	in := "# a comment\n\nfoo=bar\nbaz:qux\nspaced value\nempty=\n"
	p, err := Load(strings.NewReader(in))
	assert.NilError(t, err)
	assert.Equal(t, p["foo"], "bar")
	assert.Equal(t, p["baz"], "qux")
	assert.Equal(t, p["spaced"], "value")
	assert.Equal(t, p["empty"], "")
}

func TestLoadContinuation(t *testing.T) {
	in := "long=this is \\\n  one value\n"
	p, err := Load(strings.NewReader(in))
	assert.NilError(t, err)
	assert.Equal(t, p["long"], "this is one value")
}

func TestLoadEscapes(t *testing.T) {
	in := `key=a\:b\=c\\d`
	p, err := Load(strings.NewReader(in))
	assert.NilError(t, err)
	assert.Equal(t, p["key"], `a:b=c\d`)
}

func TestSaveSortedNoTimestamp(t *testing.T) {
	p := Properties{"zeta": "1", "alpha": "2"}
	var buf bytes.Buffer
	assert.NilError(t, Save(&buf, p))
	assert.Equal(t, buf.String(), "alpha=2\nzeta=1\n")
}

func TestRoundTrip(t *testing.T) {
	// save(load(file)) == file up to sorting.
	in := "alpha=2\nzeta=1\n"
	p, err := Load(strings.NewReader(in))
	assert.NilError(t, err)

	var buf bytes.Buffer
	assert.NilError(t, Save(&buf, p))
	assert.Equal(t, buf.String(), in)
}

func TestMergeDoesNotOverwrite(t *testing.T) {
	inMemory := Properties{"a": "cli-value"}
	persisted := Properties{"a": "disk-value", "b": "disk-only"}

	inMemory.Merge(persisted)

	assert.Equal(t, inMemory["a"], "cli-value")
	assert.Equal(t, inMemory["b"], "disk-only")
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	p, err := LoadFile("/nonexistent/deployment.properties")
	assert.NilError(t, err)
	assert.Equal(t, len(p), 0)
}

func TestInterpolateBasic(t *testing.T) {
	lookup := MapLookup(map[string]string{"name": "world"})
	assert.Equal(t, Interpolate("hello ${name}!", lookup), "hello world!")
}

func TestInterpolateUnknownPreserved(t *testing.T) {
	lookup := MapLookup(map[string]string{})
	assert.Equal(t, Interpolate("value=${missing}", lookup), "value=${missing}")
}

func TestInterpolateIdempotentWithoutPlaceholders(t *testing.T) {
	lookup := MapLookup(map[string]string{"x": "y"})
	in := "no placeholders here"
	assert.Equal(t, Interpolate(in, lookup), in)
}

func TestInterpolateSinglePass(t *testing.T) {
	// The replacement text must not be re-scanned for further placeholders.
	lookup := MapLookup(map[string]string{"a": "${b}", "b": "leaf"})
	assert.Equal(t, Interpolate("${a}", lookup), "${b}")
}
