package util

import (
	"regexp"
)

// MaxSanitizeLength bounds how much of a vendor response body is echoed back
const MaxSanitizeLength = 64 * 1024

var redactions = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)"api[_-]?key"\s*:\s*"[^"]*"`), `"apiKey":"REDACTED"`},
	{regexp.MustCompile(`(?i)([?&]key=)[^&\s"]+`), "${1}REDACTED"},
	{regexp.MustCompile(`(?i)(api[_-]?key|token|secret)[\s:=]+[^\s,"]+`), "$1=REDACTED"},
	{regexp.MustCompile(`(?i)(-u\s+[^:\s]+:)\S+`), "${1}REDACTED"},
}

// SanitizeError returns the error text with credentials redacted
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error())
}

// SanitizeString redacts API keys, query-string keys and basic-auth passwords.
// Input is truncated to MaxSanitizeLength.
func SanitizeString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) > MaxSanitizeLength {
		s = s[:MaxSanitizeLength] + "... [truncated]"
	}
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}
