// Package keywords implements the static canned-reply table consulted before
// the generation backend.
package keywords

import "strings"

// Table maps normalized message text to a canned reply.
type Table map[string]string

// Default returns the built-in reply table.
func Default() Table {
	return Table{
		"p":                    "Oi, kenapa?",
		"pinjam dulu seratus":  "Gak ada duit bro",
		"pagi":                 "Pagi juga bos!",
		"malam":                "Malam, ada apa nih?",
		"dik":                  "eitsss no no yh",
	}
}

// Normalize trims and lowercases message text for lookup.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Lookup returns the canned reply for text, normalizing it first.
func (t Table) Lookup(text string) (string, bool) {
	reply, ok := t[Normalize(text)]
	return reply, ok
}
