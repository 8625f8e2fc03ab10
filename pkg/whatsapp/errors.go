package whatsapp

import (
	"errors"
)

var (
	ErrNotConnected     = errors.New("device not connected")
	ErrAlreadyConnected = errors.New("device already connected")
	ErrQRTimeout        = errors.New("QR not available yet, pairing in progress")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrInvalidDeviceID  = errors.New("device id must be 1-64 characters of letters, digits, '.', '_' or '-'")
	ErrManagerClosed    = errors.New("device manager is shut down")
	ErrInvalidGroupID   = errors.New("group id is not a WhatsApp group")
	ErrInvalidNumber    = errors.New("number is not a valid WhatsApp user")
	ErrInvalidEmoji     = errors.New("reaction must be exactly one emoji")
	ErrMediaTooLarge    = errors.New("media exceeds the configured size limit")

	ErrMediaURLNotAllowed = errors.New("media url is not allowed")
)

// UpstreamError wraps a failure raised by the protocol client while
// delegating a send, group or list operation.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}
