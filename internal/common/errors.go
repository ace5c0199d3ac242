// Package common defines shared constants and sentinel errors used across
// the server, its transports and the retroctl tool. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Request-level errors.
	ErrorValidation   = errors.New("validation failed")
	ErrorAuthRequired = errors.New("authentication required")
	ErrorAuthFailed   = errors.New("authentication failed")

	// Collaborator errors (identity provider, mail relay, object storage).
	ErrorUpstream = errors.New("upstream failure")

	ErrorInternal = errors.New("internal error")

	// Token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// ReasonError carries a human-readable reason for a client-visible rejection
// while still matching its Kind sentinel through errors.Is.
type ReasonError struct {
	Kind   error
	Reason string
}

func (e *ReasonError) Error() string { return e.Reason }

func (e *ReasonError) Unwrap() error { return e.Kind }

// Validation returns an error matching ErrorValidation with the given reason.
func Validation(reason string) error {
	return &ReasonError{Kind: ErrorValidation, Reason: reason}
}

// AuthFailed returns an error matching ErrorAuthFailed with the given reason.
func AuthFailed(reason string) error {
	return &ReasonError{Kind: ErrorAuthFailed, Reason: reason}
}

// Reason extracts the client-visible reason from err. Errors without an
// attached reason fall back to the message of the matched sentinel.
func Reason(err error) string {
	var re *ReasonError
	if errors.As(err, &re) {
		return re.Reason
	}
	for _, s := range []error{ErrorNotFound, ErrorValidation, ErrorAuthRequired, ErrorAuthFailed, ErrorUpstream} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return ErrorInternal.Error()
}
