package domain

import (
	"errors"
	"strings"
)

var (
	ErrTransportUnavailable  = errors.New("proximity transport unavailable")
	ErrPermissionDenied      = errors.New("proximity permissions denied")
	ErrScanTimeout           = errors.New("scan window elapsed before completion")
	ErrSelectionInvalid      = errors.New("invalid item selection")
	ErrTransferRejected      = errors.New("transfer rejected")
	ErrTeardown              = errors.New("session teardown")
	ErrTransferInFlight      = errors.New("a transfer is already in flight")
	ErrNoSelection           = errors.New("no item selected")
	ErrNoPeers               = errors.New("no peers discovered")
	ErrScanInProgress        = errors.New("scan in progress")
	ErrAcknowledgmentPending = errors.New("previous transfer result not dismissed")
	ErrNothingToDismiss      = errors.New("nothing to dismiss")
	ErrSessionClosed         = errors.New("session closed")
	ErrSecretNotFound        = errors.New("secret not found")
	ErrItemNotFound          = errors.New("item not found")
)

// DefaultTransferFailureMessage is shown when the server gives no reason.
const DefaultTransferFailureMessage = "Something went wrong while sending the gift."

// TransferRejectedError carries the server's reason for refusing a transfer.
type TransferRejectedError struct {
	Code    string
	Message string
	Status  int
	Cause   error
}

func (e *TransferRejectedError) Error() string {
	var b strings.Builder
	b.WriteString(ErrTransferRejected.Error())
	if e.Code != "" {
		b.WriteString(" [")
		b.WriteString(e.Code)
		b.WriteString("]")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

func (e *TransferRejectedError) Is(target error) bool {
	return target == ErrTransferRejected
}

func (e *TransferRejectedError) Unwrap() error {
	return e.Cause
}

func (e *TransferRejectedError) UserMessage() string {
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}

	return DefaultTransferFailureMessage
}

// AsTransferRejected normalizes any transfer failure into a TransferRejectedError.
func AsTransferRejected(err error) *TransferRejectedError {
	if err == nil {
		return nil
	}

	var rejected *TransferRejectedError
	if errors.As(err, &rejected) {
		return rejected
	}

	return &TransferRejectedError{Cause: err}
}
