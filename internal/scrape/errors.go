// Package scrape implements the page fetch boundary: its transient/permanent
// error taxonomy and the retrying decorator shared by every provider.
package scrape

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is returned by every scrape provider. It carries the request context
// needed to diagnose the failure.
type Error struct {
	URL       string
	Attempt   int
	Status    int
	Transient bool
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("scrape %s: %s", e.URL, e.Message)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Attempt > 0 {
		msg += fmt.Sprintf(" [attempt %d]", e.Attempt)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewTransient builds a retryable scrape error.
func NewTransient(url string, status int, message string, cause error) *Error {
	return &Error{URL: url, Status: status, Transient: true, Message: message, Err: cause}
}

// NewPermanent builds a non-retryable scrape error.
func NewPermanent(url string, status int, message string, cause error) *Error {
	return &Error{URL: url, Status: status, Transient: false, Message: message, Err: cause}
}

// IsTransient reports whether err is a scrape error marked transient.
func IsTransient(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Transient
}

// IsTransientStatus reports whether an HTTP status is worth retrying.
func IsTransientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// FromStatus classifies a non-2xx HTTP response.
func FromStatus(url string, status int, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("request failed with status %d", status)
	}
	if IsTransientStatus(status) {
		return NewTransient(url, status, message, nil)
	}
	return NewPermanent(url, status, message, nil)
}
