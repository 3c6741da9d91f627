// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package props

import "strings"

// Lookup resolves a placeholder name to its replacement value. The second
// return value is false when the name is unknown.
type Lookup func(name string) (string, bool)

// MapLookup adapts a plain map to a Lookup.
func MapLookup(m map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

// Interpolate substitutes ${name} occurrences in template using lookup. A
// placeholder whose name resolves to "unknown" is left in the output
// verbatim, including its ${...} delimiters. Substitution is single-pass:
// the replacement text is never itself re-scanned for placeholders.
func Interpolate(template string, lookup Lookup) string {
	var out strings.Builder
	i := 0
	for i < len(template) {
		start := strings.Index(template[i:], "${")
		if start < 0 {
			out.WriteString(template[i:])
			break
		}
		start += i
		out.WriteString(template[i:start])

		end := strings.IndexByte(template[start+2:], '}')
		if end < 0 {
			// Unterminated placeholder: copy the rest verbatim.
			out.WriteString(template[start:])
			break
		}
		end += start + 2

		name := template[start+2 : end]
		if value, ok := lookup(name); ok {
			out.WriteString(value)
		} else {
			out.WriteString(template[start : end+1])
		}
		i = end + 1
	}
	return out.String()
}

// InterpolateMap runs Interpolate over every value in m, substituting
// against m itself (so properties may reference injected entries added to
// the same map before the call).
func InterpolateMap(m map[string]string) map[string]string {
	lookup := MapLookup(m)
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = Interpolate(v, lookup)
	}
	return out
}
