package logging

import (
	"regexp"
	"strings"
)

// sensitivePatterns match credentials embedded in URLs, headers and messages.
// The second group is the secret.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|api[_-]?secret|access[_-]?token|auth[_-]?token|password)([=:]\s*)([^\s&"']+)`),
	regexp.MustCompile(`(?i)(authorization:\s*(?:token|bearer)\s+)()(\S+)`),
}

// MaskCredential masks a credential, keeping a few characters for recognition.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// Redact masks credentials found in s.
func Redact(s string) string {
	for _, pattern := range sensitivePatterns {
		s = pattern.ReplaceAllStringFunc(s, func(match string) string {
			m := pattern.FindStringSubmatch(match)
			return m[1] + m[2] + MaskCredential(m[3])
		})
	}
	return s
}
