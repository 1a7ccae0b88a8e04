package slack

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingToken is returned by New when no bot token is configured.
var ErrMissingToken = errors.New("slack bot token is required")

// ErrorClass represents a classification of Slack API errors.
type ErrorClass string

const (
	// ErrorClassNetwork represents transport failures and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents HTTP 429 or the "ratelimited" error code.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassClient represents other 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassAuth represents token problems that end the session.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassAPI represents any other "ok": false response.
	ErrorClassAPI ErrorClass = "api"
)

// authCodes end the session: no later call can succeed with the same token.
var authCodes = map[string]bool{
	"invalid_auth":     true,
	"not_authed":       true,
	"account_inactive": true,
	"token_revoked":    true,
	"token_expired":    true,
	"missing_scope":    true,
}

// permanentCodes fail the same way on every retry.
var permanentCodes = map[string]bool{
	"channel_not_found": true,
	"not_in_channel":    true,
	"user_not_found":    true,
	"message_not_found": true,
	"invalid_arguments": true,
	"method_not_found":  true,
	"unknown_method":    true,
}

// APIError is a failed Slack Web API call.
type APIError struct {
	Method     string
	StatusCode int
	Code       string
	Class      ErrorClass
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	detail := e.Code
	if e.Err != nil {
		detail = e.Err.Error()
	}
	if detail == "" {
		detail = fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("slack %s %s error (status %d): %s", e.Method, e.Class, e.StatusCode, detail)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Fatal reports whether retrying the call is pointless.
func (e *APIError) Fatal() bool {
	switch e.Class {
	case ErrorClassAuth, ErrorClassClient:
		return true
	case ErrorClassAPI:
		return permanentCodes[e.Code]
	default:
		return false
	}
}

// RetryDelay returns the wait Slack asked for on a rate limit, zero otherwise.
func (e *APIError) RetryDelay() time.Duration {
	if e.Class != ErrorClassRateLimit {
		return 0
	}
	return e.RetryAfter
}

// classifyCode maps an "ok": false error code to its class.
func classifyCode(code string) ErrorClass {
	switch {
	case code == "ratelimited":
		return ErrorClassRateLimit
	case authCodes[code]:
		return ErrorClassAuth
	default:
		return ErrorClassAPI
	}
}

// classifyStatus maps a non-2xx HTTP status to its class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	case status >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}

// IsAuthError reports whether err ends the session.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Class == ErrorClassAuth
}
