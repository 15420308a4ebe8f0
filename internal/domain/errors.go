package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for a deployment run. Callers check for them with errors.Is.
var (
	ErrPipelineNotFound = errors.New("pipeline not found")
	ErrAdapterNotFound  = errors.New("adapter not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrTaskTimeout      = errors.New("task timed out")
	ErrTaskFailed       = errors.New("task failed")
	ErrRollbackFailed   = errors.New("rollback failed")
	ErrStageAborted     = errors.New("stage aborted")
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionFailed     = errors.New("session failed")
	ErrUnknownPlatform   = errors.New("platform is not part of the session")
	ErrInvalidTransition = errors.New("invalid platform status transition")
	ErrInvalidPipeline   = errors.New("invalid pipeline definition")
	ErrNoPlatforms       = errors.New("at least one platform is required")
)

var kindNames = []struct {
	err  error
	name string
}{
	{ErrPipelineNotFound, "PipelineNotFound"},
	{ErrAdapterNotFound, "AdapterNotFound"},
	{ErrValidationFailed, "ValidationFailed"},
	{ErrTaskTimeout, "TaskTimeout"},
	{ErrTaskFailed, "TaskFailed"},
	{ErrRollbackFailed, "RollbackFailed"},
	{ErrStageAborted, "StageAborted"},
}

// KindOf returns the taxonomy name of err, or "Error" when err carries none.
func KindOf(err error) string {
	for _, k := range kindNames {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Error"
}

// Describe renders err the way it is recorded in a session's error list.
func Describe(err error) string {
	return KindOf(err) + ": " + err.Error()
}

// TaskError is the terminal outcome of one platform task within a stage.
type TaskError struct {
	Platform string
	Stage    StageName
	Attempts int
	Kind     error // one of the taxonomy sentinels
	Err      error // adapter diagnostic, may be nil
}

func (e *TaskError) Error() string {
	detail := e.Kind.Error()
	if e.Err != nil {
		detail = e.Err.Error()
	}
	if e.Attempts > 1 {
		return fmt.Sprintf("%s: %s: after %d attempts: %s", e.Platform, e.Stage, e.Attempts, detail)
	}
	return fmt.Sprintf("%s: %s: %s", e.Platform, e.Stage, detail)
}

func (e *TaskError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
