package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		code ErrorCode
	}{
		{ValidationError{Field: "start_date", Message: "required"}, CodeValidation},
		{NotFoundError{Entity: EntityAnimal, ID: "42"}, CodeNotFound},
		{ConflictError{Entity: EntityAnimal, ID: "42"}, CodeConflict},
		{InvalidStateError{Entity: EntityBreedingCycle, ID: "c1", State: "completed"}, CodeInvalidState},
		{RuleViolationError{}, CodeConflict},
		// Errors without a domain code get an explicit class, never "".
		{errors.New("disk failure"), CodeInternal},
		{fmt.Errorf("bulk item: %w", errors.New("disk failure")), CodeInternal},
	}
	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.code {
			t.Fatalf("CodeOf(%T) = %q, want %q", tc.err, got, tc.code)
		}
	}
	if got := CodeOf(nil); got != "" {
		t.Fatalf("nil error must have no code, got %q", got)
	}
}

func TestCodeOfUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("complete cycle: %w", NotFoundError{Entity: EntityStatus, ID: "s1"})
	if got := CodeOf(wrapped); got != CodeNotFound {
		t.Fatalf("CodeOf(wrapped) = %q", got)
	}
}

func TestErrorMessages(t *testing.T) {
	if got := (ValidationError{Field: "sex", Message: "must be male or female"}).Error(); got != "sex: must be male or female" {
		t.Fatalf("validation message = %q", got)
	}
	if got := (ValidationError{Message: "bad input"}).Error(); got != "bad input" {
		t.Fatalf("fieldless validation message = %q", got)
	}
	if got := (NotFoundError{Entity: EntityAnimal, ID: "42"}).Error(); got != "animal 42 not found" {
		t.Fatalf("not found message = %q", got)
	}
	if got := (InvalidStateError{Entity: EntityBreedingCycle, ID: "c1", State: "completed"}).Error(); got != "breeding_cycle c1 is completed" {
		t.Fatalf("invalid state message = %q", got)
	}
}
