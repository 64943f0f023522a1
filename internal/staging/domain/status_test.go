package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusRaw, StatusNormalized, true},
		{StatusRaw, StatusNormError, true},
		{StatusNormalized, StatusValidated, true},
		{StatusNormalized, StatusValidError, true},
		{StatusRaw, StatusValidated, false},
		{StatusNormalized, StatusRaw, false},
		{StatusValidated, StatusRaw, false},
		{StatusValidated, StatusNormalized, false},
		{StatusNormError, StatusNormalized, false},
		{StatusValidError, StatusValidated, false},
		{StatusNormalized, StatusNormalized, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTransitionTo_ValidatedIsFrozen(t *testing.T) {
	line, err := NewStagingLine("t1", "b1", "f.pdf", 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := line.TransitionTo(StatusNormalized); err != nil {
		t.Fatalf("RAW -> NORMALIZED: %v", err)
	}
	if err := line.TransitionTo(StatusValidated); err != nil {
		t.Fatalf("NORMALIZED -> VALIDATED: %v", err)
	}

	for _, back := range []Status{StatusRaw, StatusNormalized} {
		err := line.TransitionTo(back)
		if !errors.Is(err, ErrIllegalTransition) || !errors.Is(err, ErrLineFrozen) {
			t.Errorf("VALIDATED -> %s: err = %v, want illegal+frozen", back, err)
		}
	}
	if line.Status != StatusValidated {
		t.Errorf("status changed to %s", line.Status)
	}
}

func TestNewStagingLine_Validation(t *testing.T) {
	if _, err := NewStagingLine("", "b", "f", 1); err == nil {
		t.Error("empty tenant should fail")
	}
	if _, err := NewStagingLine("t", "b", "f", 0); err == nil {
		t.Error("line number 0 should fail")
	}
}

func TestBatchFinish(t *testing.T) {
	b, err := NewBatch("b1", "t1", "/in", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Finish(BatchRunning, time.Now()); err == nil {
		t.Error("finishing as RUNNING should fail")
	}
	if err := b.Finish(BatchSuccess, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := b.Finish(BatchError, time.Now()); err == nil {
		t.Error("second finish should fail")
	}
	b.Reopen()
	if b.Status != BatchRunning || b.FinishedAt != nil {
		t.Errorf("reopen: status=%s finished=%v", b.Status, b.FinishedAt)
	}
}

func TestHasErrors(t *testing.T) {
	issues := []Issue{NewWarning("ean", CodeChecksumMismatch, "123", "checksum")}
	if HasErrors(issues) {
		t.Error("warnings only should not count as errors")
	}
	issues = append(issues, NewError("prix_unitaire", CodeRequired, "", "missing"))
	if !HasErrors(issues) {
		t.Error("expected errors")
	}
}

func TestCheckUpdate(t *testing.T) {
	if err := CheckUpdate(StatusNormalized, StatusNormalized); err != nil {
		t.Errorf("rewrite of a non terminal line: %v", err)
	}
	if err := CheckUpdate(StatusValidated, StatusValidated); !errors.Is(err, ErrLineFrozen) {
		t.Errorf("rewrite of a validated line: %v", err)
	}
	if err := CheckUpdate(StatusRaw, StatusValidated); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("RAW -> VALIDATED: %v", err)
	}
}
