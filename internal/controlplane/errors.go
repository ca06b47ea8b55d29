package controlplane

import "errors"

// Sentinel errors for control plane operations.
var (
	ErrJobNotFound   = errors.New("job not found")
	ErrAIUnavailable = errors.New("ai responder not configured")
	ErrInvalidDate   = errors.New("invalid date, want YYYY-MM-DD")
)
