package store

import "strings"

// CompileFTSQuery translates a websearch-style keyword query (quoted phrases,
// AND/OR operators) into FTS5 MATCH syntax. Bare terms are quoted so
// punctuation in user text cannot produce FTS5 syntax errors. Returns ""
// when the query carries no searchable terms.
func CompileFTSQuery(q string) string {
	tokens := splitQuery(q)
	var parts []string
	for _, tok := range tokens {
		switch {
		case tok.phrase:
			if t := sanitizeTerm(tok.text); t != "" {
				parts = append(parts, `"`+t+`"`)
			}
		case tok.text == "AND", tok.text == "OR":
			// Operators only make sense between terms; collapse runs.
			if n := len(parts); n > 0 && parts[n-1] != "AND" && parts[n-1] != "OR" {
				parts = append(parts, tok.text)
			}
		default:
			if t := sanitizeTerm(tok.text); t != "" {
				parts = append(parts, `"`+t+`"`)
			}
		}
	}
	// Drop a trailing operator left dangling by the loop.
	for len(parts) > 0 {
		last := parts[len(parts)-1]
		if last != "AND" && last != "OR" {
			break
		}
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, " ")
}

type queryToken struct {
	text   string
	phrase bool
}

// splitQuery splits on whitespace, keeping double-quoted runs together.
func splitQuery(q string) []queryToken {
	var out []queryToken
	var cur strings.Builder
	inPhrase := false

	flush := func(phrase bool) {
		if cur.Len() > 0 {
			out = append(out, queryToken{text: cur.String(), phrase: phrase})
			cur.Reset()
		}
	}

	for _, r := range q {
		switch {
		case r == '"':
			flush(inPhrase)
			inPhrase = !inPhrase
		case !inPhrase && (r == ' ' || r == '\t' || r == '\n'):
			flush(false)
		default:
			cur.WriteRune(r)
		}
	}
	flush(inPhrase)
	return out
}

// sanitizeTerm strips embedded double quotes and trims whitespace.
func sanitizeTerm(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, `"`, ""))
}
