package logging

import (
	"regexp"
	"unicode/utf8"
)

const (
	// MaxTextLogLength caps user-authored text (labels, prompts, LLM output) in logs.
	MaxTextLogLength = 100
	RedactedText     = "[REDACTED]"
)

// redaction replaces every match of re with repl.
type redaction struct {
	re   *regexp.Regexp
	repl string
}

var (
	// password=..., pwd=..., pass=... in URL or key=value DSNs
	passwordRedaction = redaction{regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`), "${1}=" + RedactedText}

	// user:pass@host
	userInfoRedaction = redaction{regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`), "://" + RedactedText + "@" + RedactedText}

	// connRedactions apply to DSNs; errRedactions also cover LLM credentials
	// that provider SDKs echo back in error messages.
	connRedactions = []redaction{passwordRedaction, userInfoRedaction}
	errRedactions  = []redaction{
		passwordRedaction,
		{regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-_.]+`), "Bearer " + RedactedText},
		{regexp.MustCompile(`\bsk-[A-Za-z0-9\-_]{16,}`), RedactedText},
		{regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9\-_]{20,}`), "${1}=" + RedactedText},
		userInfoRedaction,
	}
)

func redact(s string, rules []redaction) string {
	for _, r := range rules {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return s
}

// SanitizeConnectionString hides passwords in a Postgres URL or key=value DSN.
func SanitizeConnectionString(connStr string) string {
	return redact(connStr, connRedactions)
}

// SanitizeError renders err with database and LLM credentials redacted.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return redact(err.Error(), errRedactions)
}

// TruncateForLog shortens user text to MaxTextLogLength runes.
func TruncateForLog(s string) string {
	return TruncateString(s, MaxTextLogLength)
}

// TruncateString cuts s to maxLen runes plus an ellipsis. Labels are often
// Korean, so the cut never splits a UTF-8 sequence.
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
