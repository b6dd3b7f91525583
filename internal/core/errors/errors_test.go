package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestDomainError_Message(t *testing.T) {
	err := New(CodeNotFound, "bundle missing")
	if !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("expected code in message, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "bundle missing") {
		t.Errorf("expected message text, got %q", err.Error())
	}
}

func TestWrap_Unwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := Wrap(inner, CodeCacheError, "stage cache write failed")

	if !errors.Is(err, inner) {
		t.Error("expected wrapped error to match with errors.Is")
	}
	if !IsCode(err, CodeCacheError) {
		t.Error("expected CACHE_ERROR code")
	}
	if IsCode(err, CodeNotFound) {
		t.Error("did not expect NOT_FOUND code")
	}
}

func TestAddContext(t *testing.T) {
	err := New(CodeStageFailed, "work function failed")
	err = AddContext(err, CtxStage, "impact_analysis")

	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("expected DomainError")
	}
	if de.Context[CtxStage] != "impact_analysis" {
		t.Errorf("expected stage context, got %v", de.Context)
	}
}

func TestAddContext_PlainError(t *testing.T) {
	err := AddContext(errors.New("boom"), CtxPath, "/tmp/x")
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("expected plain error to be promoted to DomainError")
	}
	if de.Code != CodeInternal {
		t.Errorf("expected INTERNAL_ERROR, got %s", de.Code)
	}
}
