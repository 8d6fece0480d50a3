package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapKeepsCodeAndCause(t *testing.T) {
	cause := stdErrors.New("rpc down")
	err := Wrap(CodeChainFailure, cause, "发送交易失败", WithMetadata("sender", "6281"))

	wrapped := fmt.Errorf("dispatch: %w", err)
	if CodeOf(wrapped) != CodeChainFailure {
		t.Fatalf("unexpected code: %s", CodeOf(wrapped))
	}
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if !stdErrors.Is(wrapped, New(CodeChainFailure, "")) {
		t.Fatalf("expected errors.Is to match by code")
	}
	if err.Metadata()["sender"] != "6281" {
		t.Fatalf("metadata missing: %+v", err.Metadata())
	}
	if !ShouldAlert(wrapped) {
		t.Fatalf("chain failures should alert")
	}
}

func TestAttributesFallback(t *testing.T) {
	if CodeOf(stdErrors.New("plain")) != CodeUnknown {
		t.Fatalf("plain errors should map to UNKNOWN")
	}
	if AttributesOf("NOT_REGISTERED").Severity != SeverityCritical {
		t.Fatalf("unregistered codes should inherit UNKNOWN attributes")
	}

	Register("TEST_CODE", Attributes{Message: "test", Severity: SeverityInfo})
	if got := New("TEST_CODE", "").Message(); got != "test" {
		t.Fatalf("expected registered default message, got %q", got)
	}
	if ShouldAlert(New(CodeInvalidArgument, "bad amount")) {
		t.Fatalf("validation errors must not alert")
	}
	if sev := SeverityOf(New(CodeInvalidArgument, "", WithSeverity(SeverityCritical))); sev != SeverityCritical {
		t.Fatalf("severity override ignored: %s", sev)
	}
}
