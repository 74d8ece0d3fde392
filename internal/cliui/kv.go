package cliui

import "strings"

// KV is one key=value fragment of a status line.
type KV struct {
	K string
	V string
}

// JoinKV renders pairs as "k=v" separated by two spaces, skipping pairs
// with an empty key.
func JoinKV(pairs ...KV) string {
	var b strings.Builder
	for _, p := range pairs {
		if strings.TrimSpace(p.K) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("  ")
		}
		b.WriteString(p.K)
		b.WriteByte('=')
		b.WriteString(p.V)
	}
	return b.String()
}
