// Package template renders per-recipient message text.
//
// The syntax is deliberately tiny: {name} is replaced by tokens["name"].
// There is no escaping for literal braces and no nesting.
package template

import "strings"

// Render substitutes {token} placeholders in tmpl using the given map.
//
// Rules:
//   - A placeholder whose name is missing from tokens passes through
//     verbatim (no error, no partial substitution).
//   - Substitution is literal and single-pass: a substituted value is
//     never re-scanned for further placeholders.
//   - A '{' followed by another '{' before any '}' is literal text.
//
// Render is pure and safe for concurrent use.
func Render(tmpl string, tokens map[string]string) string {
	if !strings.ContainsRune(tmpl, '{') {
		return tmpl
	}

	var b strings.Builder
	b.Grow(len(tmpl))

	for len(tmpl) > 0 {
		open := strings.IndexByte(tmpl, '{')
		if open < 0 {
			b.WriteString(tmpl)
			break
		}
		b.WriteString(tmpl[:open])
		tmpl = tmpl[open:]

		end := strings.IndexByte(tmpl[1:], '}')
		if end < 0 {
			// Unterminated placeholder: rest is literal.
			b.WriteString(tmpl)
			break
		}
		name := tmpl[1 : 1+end]

		if inner := strings.IndexByte(name, '{'); inner >= 0 {
			// A new '{' starts before this one closes; everything up to
			// it is literal and scanning restarts at the inner brace.
			b.WriteString(tmpl[:1+inner])
			tmpl = tmpl[1+inner:]
			continue
		}

		if val, ok := tokens[name]; ok {
			b.WriteString(val)
		} else {
			b.WriteString(tmpl[:end+2])
		}
		tmpl = tmpl[end+2:]
	}

	return b.String()
}
