package domain

import (
	"errors"
	"strings"
)

// ErrorKind buckets failures for retry and reporting decisions.
type ErrorKind string

const (
	ErrKindNetwork    ErrorKind = "network"            // connectivity / timeout, retryable
	ErrKindValidation ErrorKind = "validation"         // malformed input caught pre-request
	ErrKindUpstream   ErrorKind = "upstream-rejection" // backend returned a structured error
	ErrKindPermission ErrorKind = "permission"         // authorization denial
	ErrKindUnknown    ErrorKind = "unknown"
)

// Sentinel errors for storage uploads.
var (
	ErrBucketMissing    = errors.New("storage bucket not found")
	ErrPermissionDenied = errors.New("storage permission denied")
)

// transient substrings mark errors worth retrying. Matching is on error
// text because upstream SDK errors do not share a common type.
var transientSubstrings = []string{"network", "timeout", "fetch", "aborted"}

// ClassifyError maps an error onto the taxonomy.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrKindUnknown
	}
	if errors.Is(err, ErrPermissionDenied) {
		return ErrKindPermission
	}
	if errors.Is(err, ErrBucketMissing) {
		return ErrKindUpstream
	}
	if IsTransient(err) {
		return ErrKindNetwork
	}
	return ErrKindUnknown
}

// IsTransient reports whether an error looks like a transient network
// failure that a bounded retry may recover from.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
