// Package redact strips PII from transcript text before it reaches logs or
// artifacts. Toggled globally from the privacy config.
package redact

import (
	"regexp"
	"sync/atomic"
)

var enabled atomic.Bool

type rule struct {
	re          *regexp.Regexp
	replacement string
}

// Order matters: emails contain digit runs that the phone rule would
// otherwise mangle first.
var rules = []rule{
	{regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`), "[REDACTED_PHONE]"},
}

// SetEnabled toggles redaction process-wide.
func SetEnabled(v bool) { enabled.Store(v) }

// Enabled reports whether redaction is active.
func Enabled() bool { return enabled.Load() }

// Text applies every redaction rule when enabled; otherwise returns the
// input untouched.
func Text(in string) string {
	if !enabled.Load() || in == "" {
		return in
	}
	out := in
	for _, r := range rules {
		out = r.re.ReplaceAllString(out, r.replacement)
	}
	return out
}
