// Package meta is the integration layer for the Meta Marketing API.
// Nothing here makes business decisions; it is API calls, retry, and error
// classification only.
package meta

import "fmt"

// Error codes the platform returns for transient conditions, worth a
// bounded retry: generic temporary errors (1, 2), application rate limit
// (4), user rate limit (17), page rate limit (32), custom call budget (613).
var retryableCodes = map[int]bool{
	1: true, 2: true, 4: true, 17: true, 32: true, 613: true,
}

// Codes that mean the token is invalid or expired. Retrying cannot help and
// the whole cycle is unworkable.
var authCodes = map[int]bool{
	102: true, 190: true, 467: true,
}

// APIError is a structured error from the platform's error envelope.
type APIError struct {
	Code    int    `json:"code"`
	Subcode int    `json:"error_subcode,omitempty"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform error %d (%s): %s", e.Code, e.Type, e.Message)
}

// Retryable reports whether the error is a transient platform condition.
func (e *APIError) Retryable() bool {
	return retryableCodes[e.Code]
}

// AuthFailed reports whether the error means the credentials are unusable.
func (e *APIError) AuthFailed() bool {
	return authCodes[e.Code] || e.Type == "OAuthException"
}
