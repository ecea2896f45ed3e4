// Package jsonextract recovers a JSON object from free-form model output.
//
// Generative backends routinely wrap the requested JSON in prose or markdown
// code fences. Instead of special-casing fences, the extractor scans for the
// first brace-balanced object, which naturally excludes any surrounding text.
package jsonextract

// FirstObject returns the substring of text spanning the first balanced JSON
// object. Braces inside quoted strings do not affect depth tracking and
// escaped quotes do not toggle string context.
//
// If no balanced object is found, it falls back to the span between the first
// '{' and the last '}'. If that span does not exist either, text is returned
// unchanged so that the caller's JSON parse surfaces the failure.
func FirstObject(text string) string {
	var (
		inString bool
		escaped  bool
		depth    int
		start    = -1
	)

	for i := 0; i < len(text); i++ {
		c := text[i]

		if escaped {
			escaped = false
			continue
		}

		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inString && depth > 0 {
				depth--
				if depth == 0 {
					// First balanced object wins; don't scan further.
					return text[start : i+1]
				}
			}
		}
	}

	return naiveSpan(text)
}

// naiveSpan is the fallback for unbalanced input: everything between the first
// '{' and the last '}', or the input unchanged when no such span exists.
func naiveSpan(text string) string {
	first := -1
	last := -1
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{':
			if first == -1 {
				first = i
			}
		case '}':
			last = i
		}
	}
	if first != -1 && last > first {
		return text[first : last+1]
	}
	return text
}
