// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package props implements placeholder interpolation and the key=value
// "properties" file format used for the three effective property maps
// (system, launching, framework) and for per-source deployment.properties
// files.
package props

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Properties is a plain key/value map. Keys and Save always iterate in
// sorted key order; insertion order is not kept.
type Properties map[string]string

// New returns an empty Properties map.
func New() Properties {
	return make(Properties)
}

// Keys returns the map's keys in sorted order.
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge copies every key from other into p that is not already present in
// p, leaving existing values untouched: callers pass already-set CLI
// overrides as the receiver and persisted defaults as other.
func (p Properties) Merge(other Properties) {
	for k, v := range other {
		if _, exists := p[k]; !exists {
			p[k] = v
		}
	}
}

// Load parses a key=value properties file from r. Supported escapes are
// `\\`, `\n`, `\t`, `\:`, `\=`, `\ ` (as found in the ambient ISO
// text-properties convention), and a trailing unescaped `\` at end of line
// continues the value onto the next line. Lines whose first non-blank
// character is `#` or `!` are comments and are skipped, as are blank lines.
func Load(r io.Reader) (Properties, error) {
	p := New()
	scanner := bufio.NewScanner(r)

	var pendingKey string
	var pendingValue strings.Builder
	continuing := false

	for scanner.Scan() {
		line := scanner.Text()

		if continuing {
			trimmed := strings.TrimLeft(line, " \t")
			cont, value := unescapeLine(trimmed)
			pendingValue.WriteString(value)
			if cont {
				continue
			}
			p[pendingKey] = pendingValue.String()
			continuing = false
			continue
		}

		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" || trimmed[0] == '#' || trimmed[0] == '!' {
			continue
		}

		key, rawValue, ok := splitKeyValue(trimmed)
		if !ok {
			continue
		}

		cont, value := unescapeLine(rawValue)
		if cont {
			pendingKey = key
			pendingValue.Reset()
			pendingValue.WriteString(value)
			continuing = true
			continue
		}
		p[key] = value
	}
	if continuing {
		p[pendingKey] = pendingValue.String()
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("props: read: %w", err)
	}
	return p, nil
}

// LoadFile opens path and parses it with Load. A missing file is not an
// error: it yields an empty Properties map (the "missing
// deployment.properties -> defaults only" boundary behavior).
func LoadFile(path string) (Properties, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("props: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// splitKeyValue finds the first unescaped separator (`=`, `:`, or run of
// whitespace) and returns the key and the remainder of the line.
func splitKeyValue(line string) (key, value string, ok bool) {
	escaped := false
	for i, r := range line {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '=', ':':
			return unescapeKey(line[:i]), line[i+1:], true
		case ' ', '\t':
			return unescapeKey(line[:i]), strings.TrimLeft(line[i+1:], " \t"), true
		}
	}
	return unescapeKey(line), "", true
}

func unescapeKey(s string) string {
	_, v := unescapeLine(s)
	return v
}

// unescapeLine decodes backslash escapes in a raw property line. It returns
// cont=true when the line ends in an unescaped backslash, signaling a
// continuation onto the next physical line.
func unescapeLine(s string) (cont bool, value string) {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			i++
			continue
		}
		if i == len(s)-1 {
			return true, b.String()
		}
		switch s[i+1] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', ':', '=', ' ':
			b.WriteByte(s[i+1])
		default:
			b.WriteByte(s[i+1])
		}
		i += 2
	}
	return false, b.String()
}

// Save writes p to w as sorted key=value lines with no timestamp comment,
// using `\n` line endings and escaping `\`, `\n`, `\t`, `:`, and `=` in
// keys and values.
func Save(w io.Writer, p Properties) error {
	bw := bufio.NewWriter(w)
	for _, k := range p.Keys() {
		if _, err := fmt.Fprintf(bw, "%s=%s\n", escape(k, true), escape(p[k], false)); err != nil {
			return fmt.Errorf("props: write: %w", err)
		}
	}
	return bw.Flush()
}

// SaveFile writes p to path, creating parent directories as needed.
func SaveFile(path string, p Properties) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("props: create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("props: create %s: %w", path, err)
	}
	defer f.Close()
	return Save(f, p)
}

func escape(s string, isKey bool) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '=', ':':
			b.WriteByte('\\')
			b.WriteRune(r)
		case ' ':
			if isKey {
				b.WriteString(`\ `)
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
