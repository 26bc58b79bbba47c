// Package notify implements the alert delivery boundary: the delivery error
// taxonomy and a retrying service around a single-attempt Sender.
package notify

import (
	"errors"
	"fmt"
)

// DeliveryError is returned when an alert could not be delivered.
type DeliveryError struct {
	ChangeEventID int64
	TargetID      int64
	Attempt       int
	Status        int
	Transient     bool
	Message       string
	Err           error
}

func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("deliver change event %d: %s", e.ChangeEventID, e.Message)
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

func (e *DeliveryError) Unwrap() error { return e.Err }

// NewTransient builds a retryable delivery error.
func NewTransient(status int, message string, cause error) *DeliveryError {
	return &DeliveryError{Status: status, Transient: true, Message: message, Err: cause}
}

// NewPermanent builds a non-retryable delivery error.
func NewPermanent(status int, message string, cause error) *DeliveryError {
	return &DeliveryError{Status: status, Transient: false, Message: message, Err: cause}
}

// IsTransient reports whether err is a delivery error marked transient.
func IsTransient(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Transient
}

// normalize converts foreign errors into permanent delivery errors.
func normalize(err error) *DeliveryError {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de
	}
	msg := "email delivery failed"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &DeliveryError{Transient: false, Message: msg, Err: err}
}
