package persistence

import "errors"

var (
	// ErrWorkflowNotFound is returned when a workflow does not exist or is
	// soft-deleted.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRunNotFound is returned when a workflow run does not exist.
	ErrRunNotFound = errors.New("workflow run not found")

	// ErrStaleRun is returned by CommitStep when the expected step count no
	// longer matches, meaning the advancement was already committed.
	ErrStaleRun = errors.New("stale run advancement")

	// ErrClaimLost is returned when a worker touches a run whose lease it no
	// longer holds.
	ErrClaimLost = errors.New("run claim lost")
)

func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

func IsStaleRun(err error) bool {
	return errors.Is(err, ErrStaleRun)
}

func IsClaimLost(err error) bool {
	return errors.Is(err, ErrClaimLost)
}
