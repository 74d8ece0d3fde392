package cliui

// Truncate caps s at max runes, replacing the tail with "..." when
// anything was cut. A max of 3 or less leaves no room for the ellipsis and
// cuts hard.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	if max <= 3 {
		return string(rs[:max])
	}
	return string(rs[:max-3]) + "..."
}
