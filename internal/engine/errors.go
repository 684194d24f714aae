package engine

import "errors"

var (
	// ErrInvalidState is returned when an operation targets an episode that
	// is no longer active.
	ErrInvalidState = errors.New("episode is not active")

	// ErrNoPregeneratedScene is returned when processChoice finds no
	// candidate for the requested branch. Recoverable: the caller retries or
	// triggers the explicit repair path; there is no silent synchronous
	// fallback because that would break the instant-latency contract.
	ErrNoPregeneratedScene = errors.New("no pre-generated scene for the requested branch")

	// ErrConcurrentModification is returned when a second operation is
	// attempted on an episode while one is in flight. Retryable.
	ErrConcurrentModification = errors.New("another operation is in flight for this episode")

	// ErrMissingWorldBible is a workflow error: content generation was
	// attempted before the episode's bible exists. It should never surface
	// in correct operation.
	ErrMissingWorldBible = errors.New("world bible missing for episode")

	// ErrEpisodeNotFound is returned when the episode id is unknown.
	ErrEpisodeNotFound = errors.New("episode not found")
)
