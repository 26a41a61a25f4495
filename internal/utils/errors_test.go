package utils

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppErrorKindMatching(t *testing.T) {
	base := errors.New("threshold is zero")
	err := fmt.Errorf("aggregate: %w", ConfigurationError("scoring.Aggregate", "invalid threshold", base))

	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration kind, got %v", err)
	}
	if errors.Is(err, ErrDetection) {
		t.Fatalf("did not expect detection kind")
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause to be reachable")
	}
	if !strings.Contains(err.Error(), "invalid threshold") {
		t.Fatalf("unexpected message: %s", err)
	}
}

func TestRecoveredPanicValue(t *testing.T) {
	err := Recovered(ErrDetection, "markers.scan", "boom")
	if !errors.Is(err, ErrDetection) {
		t.Fatalf("expected detection kind, got %v", err)
	}
	cause := errors.New("nil map")
	err = Recovered(ErrPhase, "phase2", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected panic error to be wrapped")
	}
}
