package search

import "strings"

// Lucene special characters that must be escaped before a user query is
// handed to db.index.fulltext.queryNodes.
var luceneSpecials = `+-&|!(){}[]^"~*?:\/`

// EscapeLucene backslash-escapes Lucene metacharacters and lowercases bare
// AND, OR and NOT so user text is matched literally. Only the uppercase
// forms are operators; lowercasing keeps the words searchable.
func EscapeLucene(query string) string {
	var b strings.Builder
	b.Grow(len(query) * 2)
	for _, r := range query {
		if strings.ContainsRune(luceneSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	words := strings.Fields(b.String())
	for i, w := range words {
		switch w {
		case "AND", "OR", "NOT":
			words[i] = strings.ToLower(w)
		}
	}
	return strings.Join(words, " ")
}
