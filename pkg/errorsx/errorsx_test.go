package errorsx

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapAttachesReason(t *testing.T) {
	base := errors.New("socket closed")
	err := Wrap(base, ReasonSTTConnect)
	if Reason(err) != ReasonSTTConnect {
		t.Fatalf("expected stt_connect, got %s", Reason(err))
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to unwrap to base")
	}
}

func TestWrapDoesNotRewrap(t *testing.T) {
	err := Wrap(errors.New("timeout"), ReasonLLMTimeout)
	err = Wrap(err, ReasonLLMGenerate)
	if Reason(err) != ReasonLLMTimeout {
		t.Fatalf("expected original reason preserved, got %s", Reason(err))
	}
}

func TestReasonSurvivesFmtWrap(t *testing.T) {
	err := Wrap(errors.New("boom"), ReasonPlaybackDevice)
	outer := fmt.Errorf("session: %w", err)
	if !HasReason(outer, ReasonPlaybackDevice) {
		t.Fatalf("expected reason to survive fmt wrapping")
	}
}

func TestNilErrIsNil(t *testing.T) {
	if Wrap(nil, ReasonUnknown) != nil {
		t.Fatalf("expected nil")
	}
	if Reason(nil) != ReasonUnknown {
		t.Fatalf("expected unknown reason for nil")
	}
}
