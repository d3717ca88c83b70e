package user

import "strings"

const transportPrefix = "whatsapp:"

// NormalizeID reduces a sender id to its canonical store key: bare digits,
// no transport prefix, no leading plus.
func NormalizeID(raw string) string {
	id := strings.TrimSpace(raw)
	id = strings.TrimPrefix(strings.ToLower(id), transportPrefix)
	id = strings.TrimPrefix(id, "+")
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, id)
}
