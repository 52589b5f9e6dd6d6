package optimizer

import "errors"

// The platform client reports failure classes through these interfaces so
// the engine can decide what is recoverable without importing the client.

type authError interface {
	AuthFailed() bool
}

type retryableError interface {
	Retryable() bool
}

// IsAuthError reports whether err is an authentication or token failure.
// Auth failures are cycle-fatal: no partial report is meaningful when every
// subsequent call will be rejected too.
func IsAuthError(err error) bool {
	var ae authError
	return errors.As(err, &ae) && ae.AuthFailed()
}

// IsRetryable reports whether err is a transient platform condition
// (timeout, rate limit) worth retrying at the transport layer.
func IsRetryable(err error) bool {
	var re retryableError
	return errors.As(err, &re) && re.Retryable()
}
