package corpus

import "errors"

var (
	// ErrValidation is returned for missing or malformed input.
	ErrValidation = errors.New("corpus: invalid input")

	// ErrNotFound is returned when a capture, release, or artifact path is missing.
	ErrNotFound = errors.New("corpus: not found")

	// ErrNoActiveRelease is returned when retrieval has no release to resolve.
	ErrNoActiveRelease = errors.New("corpus: no active release set for domain")

	// ErrBackend is returned when the remote embedding backend fails.
	ErrBackend = errors.New("corpus: embedding backend failed")

	// ErrIntegrity is returned for bad embedding references or missing
	// referenced artifacts during a merge.
	ErrIntegrity = errors.New("corpus: artifact integrity violation")

	// ErrCaptureUnusable is returned when an ingestion item references a
	// capture that failed or was quarantined and force is not set.
	ErrCaptureUnusable = errors.New("corpus: capture not usable")
)
