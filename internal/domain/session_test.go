package domain_test

import (
	"testing"
	"time"

	"github.com/waabox/pakdeck/internal/domain"
)

func TestPlatformStatus_ForwardTransitionsOnly(t *testing.T) {
	cases := []struct {
		from, to domain.PlatformStatus
		ok       bool
	}{
		{domain.PlatformPending, domain.PlatformRunning, true},
		{domain.PlatformPending, domain.PlatformFailed, true},
		{domain.PlatformRunning, domain.PlatformCompleted, true},
		{domain.PlatformRunning, domain.PlatformRunning, true},
		{domain.PlatformCompleted, domain.PlatformRolledBack, true},
		{domain.PlatformFailed, domain.PlatformRolledBack, true},
		{domain.PlatformCompleted, domain.PlatformRunning, false},
		{domain.PlatformFailed, domain.PlatformCompleted, false},
		{domain.PlatformRolledBack, domain.PlatformCompleted, false},
		{domain.PlatformRunning, domain.PlatformPending, false},
		{domain.PlatformPending, domain.PlatformRolledBack, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.ok {
			t.Errorf("%s -> %s: expected %v, got %v", c.from, c.to, c.ok, got)
		}
	}
}

func TestSession_CloneIsIndependent(t *testing.T) {
	done := time.Now()
	s := domain.Session{
		ID:        "s1",
		Platforms: []string{"npm"},
		PlatformStatus: map[string]domain.PlatformOutcome{
			"npm": {Status: domain.PlatformCompleted, CompletedAt: &done},
		},
		Errors: []domain.ErrorEntry{{Error: "x"}},
	}
	c := s.Clone()
	c.Platforms[0] = "pypi"
	c.Errors[0].Error = "y"
	c.PlatformStatus["npm"] = domain.PlatformOutcome{Status: domain.PlatformFailed}

	if s.Platforms[0] != "npm" || s.Errors[0].Error != "x" {
		t.Error("expected clone slices to be independent")
	}
	if s.PlatformStatus["npm"].Status != domain.PlatformCompleted {
		t.Error("expected clone map to be independent")
	}
}

func TestSession_OutcomeFailsOnFailedOrRolledBack(t *testing.T) {
	s := domain.Session{PlatformStatus: map[string]domain.PlatformOutcome{
		"npm":  {Status: domain.PlatformCompleted},
		"pypi": {Status: domain.PlatformCompleted},
	}}
	if s.Outcome() != domain.SessionCompleted {
		t.Errorf("expected completed, got %s", s.Outcome())
	}
	s.PlatformStatus["pypi"] = domain.PlatformOutcome{Status: domain.PlatformRolledBack}
	if s.Outcome() != domain.SessionFailed {
		t.Errorf("expected failed with a rolled back platform, got %s", s.Outcome())
	}
}
