package remote

import "strings"

// Quote applies the universal shell-quoting rule: wrap s in single quotes,
// escaping any embedded single quote as '\'' (close quote, escaped quote,
// reopen quote). Every string parameter that crosses the shell boundary —
// names, paths, URLs, cron bodies — must pass through this before being
// interpolated into a command line run on a remote host.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, "'") && isShellSafeLiteral(s) {
		return "'" + s + "'"
	}
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		if r == '\'' {
			b.WriteString(`'\''`)
		} else {
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// isShellSafeLiteral is purely a fast-path check; Quote is correct for any
// input regardless of this returning false.
func isShellSafeLiteral(s string) bool {
	for _, r := range s {
		if r == '\n' || r == 0 {
			return false
		}
	}
	return true
}
