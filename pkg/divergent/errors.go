package divergent

import "errors"

var (
	// ErrMissingCompletionScore indicates a summary execution produced no
	// completionScore field.
	ErrMissingCompletionScore = errors.New("summary output missing completion score")

	// ErrSessionAlreadyConverged indicates the session already owns a
	// final output node.
	ErrSessionAlreadyConverged = errors.New("session already converged")

	// ErrLevelFailed indicates a decomposition level's run did not complete.
	ErrLevelFailed = errors.New("decomposition level failed")
)
