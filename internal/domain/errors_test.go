package domain_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/waabox/pakdeck/internal/domain"
)

func TestTaskError_CanBeDetectedWithErrorsIs(t *testing.T) {
	cause := fmt.Errorf("registry answered 503")
	err := fmt.Errorf("stage deploy: %w", &domain.TaskError{
		Platform: "cargo",
		Stage:    domain.StageDeploy,
		Attempts: 3,
		Kind:     domain.ErrTaskFailed,
		Err:      cause,
	})
	if !errors.Is(err, domain.ErrTaskFailed) {
		t.Error("expected errors.Is to detect ErrTaskFailed in wrapped task error")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the adapter diagnostic")
	}
	var taskErr *domain.TaskError
	if !errors.As(err, &taskErr) || taskErr.Platform != "cargo" {
		t.Errorf("expected errors.As to extract the task error, got %v", taskErr)
	}
}

func TestDescribe_PrefixesKind(t *testing.T) {
	err := &domain.TaskError{Platform: "nuget", Stage: domain.StageValidation, Kind: domain.ErrAdapterNotFound}
	got := domain.Describe(err)
	if !strings.HasPrefix(got, "AdapterNotFound: nuget: validation") {
		t.Errorf("unexpected description: %q", got)
	}
}

func TestTaskError_MentionsAttemptsWhenRetried(t *testing.T) {
	err := &domain.TaskError{Platform: "npm", Stage: domain.StageDeploy, Attempts: 3, Kind: domain.ErrTaskTimeout}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("expected attempts in message, got %q", err.Error())
	}
}

func TestKindOf_UnclassifiedError(t *testing.T) {
	if got := domain.KindOf(errors.New("boom")); got != "Error" {
		t.Errorf("expected 'Error', got %q", got)
	}
}
