package apperr

import (
	"errors"
	"testing"
)

func TestPermanentHTTPErrorWrapsSentinel(t *testing.T) {
	err := NewPermanentHTTP(404, "https://example.com/a")
	if !errors.Is(err, ErrPermanentHTTP) {
		t.Errorf("expected errors.Is to match the sentinel")
	}
	if err.Error() == "" {
		t.Errorf("expected a non-empty error message")
	}
}

func TestTransientErrorWrapsSentinelAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewTransient(cause)
	if !errors.Is(err, ErrTransientNetwork) {
		t.Errorf("expected errors.Is to match the transient sentinel")
	}
}

func TestQualityErrorReportsReason(t *testing.T) {
	err := NewQualityFail("content too short")
	if !errors.Is(err, ErrExtractionQuality) {
		t.Errorf("expected errors.Is to match the quality sentinel")
	}
	var qe *QualityError
	if !errors.As(err, &qe) {
		t.Fatalf("expected errors.As to recover a *QualityError")
	}
	if qe.Reason != "content too short" {
		t.Errorf("expected reason preserved, got %q", qe.Reason)
	}
}

func TestDeadlockExhaustedErrorUnwraps(t *testing.T) {
	err := &DeadlockExhaustedError{Attempts: 3, Cause: errors.New("deadlock detected")}
	if !errors.Is(err, ErrDeadlockExhausted) {
		t.Errorf("expected errors.Is to match the deadlock-exhausted sentinel")
	}
}

func TestMigrationErrorUnwraps(t *testing.T) {
	err := &MigrationError{Version: 5, Name: "add_index", Cause: errors.New("syntax error")}
	if !errors.Is(err, ErrMigrationFailed) {
		t.Errorf("expected errors.Is to match the migration sentinel")
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(NewTransient(errors.New("timeout"))) {
		t.Errorf("expected a transient network error to be retryable")
	}
	if !IsTransient(ErrAIRateLimited) {
		t.Errorf("expected AI rate limiting to be retryable")
	}
	if IsTransient(NewPermanentHTTP(400, "https://example.com")) {
		t.Errorf("expected a permanent HTTP error to not be retryable")
	}
}
