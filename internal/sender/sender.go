// Package sender parses raw sender header strings into a display name and
// an email address.
package sender

import (
	"net/mail"
	"strings"
)

// Parse extracts (name, email) from a raw sender string:
//
//	"John Doe <john@example.com>" -> ("John Doe", "john@example.com")
//	"john@example.com"            -> ("", "john@example.com")
//	"John Doe"                    -> ("John Doe", "")
//
// Malformed input never fails; it degrades to whatever parts can be
// recovered, with ("", "") for an empty string. Deciding whether that is
// enough to identify a contact is the registry's call, not the parser's.
func Parse(raw string) (name, email string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}

	if addr, err := mail.ParseAddress(raw); err == nil {
		return cleanName(addr.Name), strings.ToLower(addr.Address)
	}

	// RFC parsing failed. A bare address still recoverable?
	if at := strings.LastIndex(raw, "@"); at > 0 && at < len(raw)-1 && !strings.ContainsAny(raw, " \t") {
		return "", strings.ToLower(strings.Trim(raw, "<>"))
	}

	// "Name <addr>" with an address mail.ParseAddress rejected: salvage
	// the parts independently.
	if open := strings.LastIndex(raw, "<"); open >= 0 {
		name = cleanName(raw[:open])
		addr := strings.TrimSpace(strings.Trim(raw[open:], "<>"))
		if strings.Contains(addr, "@") {
			email = strings.ToLower(addr)
		}
		return name, email
	}

	// No address at all: the whole input is a name.
	return cleanName(raw), ""
}

func cleanName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}
