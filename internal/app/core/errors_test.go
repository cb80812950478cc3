package core

import (
	"errors"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("product", "42")

	expected := `product "42" not found`
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected error to wrap ErrNotFound")
	}

	if !IsNotFound(err) {
		t.Error("IsNotFound should return true")
	}
}

func TestNotFoundError_NoID(t *testing.T) {
	err := NewNotFoundError("escrow", "")

	expected := "escrow not found"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("batch_number", "must not be empty")

	expected := "batch_number: must not be empty"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}

	if !errors.Is(err, ErrInvalidInput) {
		t.Error("expected error to wrap ErrInvalidInput")
	}

	if !IsValidationError(err) {
		t.Error("IsValidationError should return true")
	}
}

func TestRequiredError(t *testing.T) {
	err := RequiredError("manufacturer")

	expected := "manufacturer: is required"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}

	if !IsValidationError(err) {
		t.Error("IsValidationError should return true for RequiredError")
	}
}

func TestAccessDeniedError(t *testing.T) {
	err := NewAccessDeniedError("certificate", "cert-7", "acct456")

	if !errors.Is(err, ErrForbidden) {
		t.Error("expected error to wrap ErrForbidden")
	}

	if !IsForbidden(err) {
		t.Error("IsForbidden should return true")
	}

	msg := err.Error()
	if msg != `access denied to certificate "cert-7" for acct456` {
		t.Errorf("unexpected message: %s", msg)
	}
}

func TestAccessDeniedError_WithReason(t *testing.T) {
	err := &AccessDeniedError{
		Resource: "escrow",
		ID:       "e-1",
		Caller:   "user123",
		Reason:   "arbiter role required",
	}

	msg := err.Error()
	if msg != `access denied to escrow "e-1" for user123: arbiter role required` {
		t.Errorf("unexpected message: %s", msg)
	}
}

func TestConflictError(t *testing.T) {
	err := NewConflictError("product", "B-1", "batch number already registered")

	if !errors.Is(err, ErrConflict) {
		t.Error("expected error to wrap ErrConflict")
	}

	if !IsConflict(err) {
		t.Error("IsConflict should return true")
	}
}

func TestLimitError(t *testing.T) {
	err := NewLimitError("daily_rewards", "cap reached for today")

	if !errors.Is(err, ErrLimitExceeded) {
		t.Error("expected error to wrap ErrLimitExceeded")
	}
	if !IsLimitExceeded(err) {
		t.Error("IsLimitExceeded should return true")
	}
	if err.Error() != "daily_rewards: cap reached for today" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestFundsError(t *testing.T) {
	err := NewFundsError("payer-1", "escrow requires 300, balance is 120")

	if !IsInsufficientFunds(err) {
		t.Error("IsInsufficientFunds should return true")
	}
}

func TestServiceError(t *testing.T) {
	underlying := NewNotFoundError("product", "9")
	err := WrapServiceError("certificates", "Mint", underlying)

	msg := err.Error()
	expected := `certificates.Mint: product "9" not found`
	if msg != expected {
		t.Errorf("expected %q, got %q", expected, msg)
	}

	if !errors.Is(err, ErrNotFound) {
		t.Error("wrapped error should still match ErrNotFound")
	}
}

func TestWrapServiceError_Nil(t *testing.T) {
	if err := WrapServiceError("test", "op", nil); err != nil {
		t.Error("WrapServiceError(nil) should return nil")
	}
}

func TestStandardErrors(t *testing.T) {
	tests := []struct {
		err  error
		name string
	}{
		{ErrNotFound, "ErrNotFound"},
		{ErrInvalidInput, "ErrInvalidInput"},
		{ErrForbidden, "ErrForbidden"},
		{ErrConflict, "ErrConflict"},
		{ErrLimitExceeded, "ErrLimitExceeded"},
		{ErrInsufficientFunds, "ErrInsufficientFunds"},
		{ErrPaused, "ErrPaused"},
		{ErrReentrancy, "ErrReentrancy"},
	}

	for _, tc := range tests {
		if tc.err == nil {
			t.Errorf("%s should not be nil", tc.name)
		}
		if tc.err.Error() == "" {
			t.Errorf("%s should have non-empty message", tc.name)
		}
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		kind string
	}{
		{RequiredError("name"), "validation"},
		{NewAccessDeniedError("product", "1", "x"), "authorization"},
		{NewConflictError("product", "B-1", "dup"), "state_conflict"},
		{NewLimitError("interval", "too soon"), "limit_exceeded"},
		{NewFundsError("a", "short"), "insufficient_funds"},
		{NewNotFoundError("rule", "7"), "not_found"},
		{ErrPaused, "paused"},
		{ErrReentrancy, "reentrancy"},
		{errors.New("boom"), "internal"},
		{nil, ""},
	}
	for _, tc := range tests {
		if got := Kind(tc.err); got != tc.kind {
			t.Errorf("Kind(%v) = %q, want %q", tc.err, got, tc.kind)
		}
	}
}

func TestGuard(t *testing.T) {
	var g Guard

	if err := g.Enter(); err != nil {
		t.Fatalf("first enter: %v", err)
	}
	if err := g.Enter(); !errors.Is(err, ErrReentrancy) {
		t.Fatalf("nested enter should be rejected, got %v", err)
	}
	g.Exit()
	if err := g.Enter(); err != nil {
		t.Fatalf("enter after exit: %v", err)
	}
	g.Exit()
}
