package model

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a backend error carrying enough detail for failure
// classification: an HTTP status and the backend's status token.
type APIError struct {
	Status  int
	Code    string // backend status token, e.g. "RESOURCE_EXHAUSTED"
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend error %d %s: %s", e.Status, e.Code, e.Message)
}

// Class is the failure classification driving credential rotation.
type Class int

const (
	// ClassUnknown: unrecognized failure. Never rotate; surface the error
	// instead of silently retrying with degraded diagnostics.
	ClassUnknown Class = iota
	// ClassQuota: rate limit / quota exhaustion. Always rotate.
	ClassQuota
	// ClassFatal: bad request, permission denied, not found, invalid
	// argument. Never rotate; abort immediately.
	ClassFatal
	// ClassTransient: server-side failure that another credential (or a
	// later attempt) may not hit. Rotate.
	ClassTransient
)

func (c Class) String() string {
	switch c {
	case ClassQuota:
		return "quota"
	case ClassFatal:
		return "fatal"
	case ClassTransient:
		return "transient"
	default:
		return "unknown"
	}
}

var fatalMarkers = []string{"400", "INVALID_ARGUMENT", "FAILED_PRECONDITION", "403", "PERMISSION_DENIED", "404", "NOT_FOUND"}

var transientMarkers = []string{"503", "UNAVAILABLE", "500", "INTERNAL", "504", "DEADLINE_EXCEEDED"}

// Classify maps a backend error to a rotation class. A typed *APIError is
// classified by status code; anything else falls back to the backend's
// text markers, mirroring what the raw error strings actually contain.
func Classify(err error) Class {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusTooManyRequests:
			return ClassQuota
		case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
			return ClassFatal
		case http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return ClassTransient
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return ClassQuota
	}
	for _, tok := range fatalMarkers {
		if strings.Contains(msg, tok) {
			return ClassFatal
		}
	}
	for _, tok := range transientMarkers {
		if strings.Contains(msg, tok) {
			return ClassTransient
		}
	}
	return ClassUnknown
}

// PoolError aggregates a failed invocation across the credential pool.
type PoolError struct {
	Attempts int
	Last     error
}

func (e *PoolError) Error() string {
	return fmt.Sprintf("credential pool exhausted after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *PoolError) Unwrap() error {
	return e.Last
}
