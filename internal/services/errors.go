// Package services defines the business logic for RFIs: the registry and its
// lifecycle state machine, outbound dispatch, and inbound ingestion.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Errors are usually wrapped with fmt.Errorf("%w: ...") to carry a human
// message; callers test them with errors.Is. Translation into HTTP status
// codes is performed at the handler layer.
package services

import "errors"

var (
	// ErrValidation indicates malformed input: blank or over-long text,
	// unknown status, bad address.
	ErrValidation = errors.New("validation failed")

	// ErrRFINotFound indicates that the requested RFI does not exist.
	ErrRFINotFound = errors.New("rfi not found")

	// ErrProjectNotFound indicates that the referenced project does not exist.
	ErrProjectNotFound = errors.New("project not found")

	// ErrInvalidState is returned for an illegal transition or a blocked
	// delete/update/send. The wrapped message names the allowed states.
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict is returned when RFI number generation keeps colliding
	// after the configured number of attempts.
	ErrConflict = errors.New("conflict")

	// ErrTransport wraps a mail-transport failure. Nothing is persisted when
	// it is returned from Send.
	ErrTransport = errors.New("mail transport error")

	// ErrMalformedWebhook is returned for push envelopes that cannot be
	// decoded. Nothing is persisted.
	ErrMalformedWebhook = errors.New("malformed webhook")
)
