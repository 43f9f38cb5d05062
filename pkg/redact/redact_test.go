package redact

import (
	"strings"
	"testing"
)

func TestTextDisabledPassesThrough(t *testing.T) {
	SetEnabled(false)
	in := "reach me at jordan@meridian.example or +1 415 555 0142"
	if got := Text(in); got != in {
		t.Fatalf("expected no redaction, got %q", got)
	}
}

func TestTextRedactsEmailAndPhone(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)
	got := Text("reach me at jordan@meridian.example or +1 415 555 0142")
	if !strings.Contains(got, "[REDACTED_EMAIL]") {
		t.Fatalf("email not redacted: %q", got)
	}
	if !strings.Contains(got, "[REDACTED_PHONE]") {
		t.Fatalf("phone not redacted: %q", got)
	}
	if strings.Contains(got, "jordan@") {
		t.Fatalf("address leaked: %q", got)
	}
}

func TestTextLeavesPlainSpeechAlone(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)
	in := "we run about 40 trucks out of two depots"
	if got := Text(in); got != in {
		t.Fatalf("plain speech mangled: %q", got)
	}
}
