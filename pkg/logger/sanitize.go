package logger

import "strings"

// SanitizedEmail masks an email address for logging (e.g., "j***@i***.com").
// Lockout and audit logs key on emails, so they must never appear verbatim.
func SanitizedEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "[invalid-email]"
	}

	local := parts[0]
	domain := parts[1]

	if len(local) > 1 {
		local = string(local[0]) + strings.Repeat("*", len(local)-1)
	}

	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	}

	return local + "@" + domain
}

// sensitiveParams are query parameters whose presence redacts the whole
// query string in request logs.
var sensitiveParams = map[string]bool{
	"password": true,
	"token":    true,
	"secret":   true,
	"key":      true,
	"email":    true,
}

// SanitizeQueryString reports whether a raw query string contains sensitive
// parameters and should be redacted entirely.
func SanitizeQueryString(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}
	for _, pair := range strings.Split(rawQuery, "&") {
		name, _, _ := strings.Cut(pair, "=")
		if sensitiveParams[strings.ToLower(name)] {
			return true
		}
	}
	return false
}
