package store

import "strings"

// SanitizeSlug normalizes a course slug into a safe database filename:
// lowercase, [a-z0-9-] only, runs of other characters collapsed to a
// single dash, leading/trailing dashes trimmed.
func SanitizeSlug(slug string) string {
	var b strings.Builder
	lastDash := true // trims leading dashes

	for _, r := range strings.ToLower(slug) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "course"
	}
	return out
}
