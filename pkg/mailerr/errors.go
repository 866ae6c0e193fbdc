// SPDX-FileCopyrightText: 2024 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

// Package mailerr defines the failure taxonomy shared by every stage of the
// notification dispatch pipeline.
package mailerr

import (
	"errors"
	"fmt"
)

// Failure kinds. Use errors.Is against these to branch on the category of a
// pipeline error regardless of the fine-grained Reason.
var (
	ErrConfigIncomplete   = errors.New("configuration incomplete")
	ErrConnection         = errors.New("connection failure")
	ErrAuthentication     = errors.New("authentication failure")
	ErrTemplate           = errors.New("template error")
	ErrHeaderEncoding     = errors.New("header encoding error")
	ErrImageAcquisition   = errors.New("image acquisition error")
	ErrTransmission       = errors.New("transmission error")
	ErrUnknownServerType  = errors.New("unknown server type")
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrNoServerEnabled    = errors.New("no server enabled")
)

type Reason string

const (
	ReasonConfigIncomplete   Reason = "CONFIG_INCOMPLETE"
	ReasonTimeout            Reason = "TIMEOUT"
	ReasonHostResolution     Reason = "HOST_RESOLUTION"
	ReasonConnectionRefused  Reason = "CONNECTION_REFUSED"
	ReasonAuthRejected       Reason = "AUTH_REJECTED"
	ReasonUnexpectedResponse Reason = "UNEXPECTED_RESPONSE"
	ReasonDisconnected       Reason = "DISCONNECTED"
	ReasonAuthUnsupported    Reason = "AUTH_UNSUPPORTED"
	ReasonUnknownTransport   Reason = "UNKNOWN_TRANSPORT"
	ReasonTemplateNotFound   Reason = "TEMPLATE_NOT_FOUND"
	ReasonTemplateUnreadable Reason = "TEMPLATE_UNREADABLE"
	ReasonTemplateEncoding   Reason = "TEMPLATE_ENCODING"
	ReasonTemplateVariable   Reason = "TEMPLATE_VARIABLE"
	ReasonHeaderEncoding     Reason = "HEADER_ENCODING"
	ReasonImageNetwork       Reason = "IMAGE_NETWORK"
	ReasonImageFile          Reason = "IMAGE_FILE"
	ReasonImageDecode        Reason = "IMAGE_DECODE"
	ReasonImageUnrecognized  Reason = "IMAGE_UNRECOGNIZED"
	ReasonAddressRefused     Reason = "ADDRESS_REFUSED"
	ReasonDataRejected       Reason = "DATA_REJECTED"
	ReasonConnectionLost     Reason = "CONNECTION_LOST"
	ReasonSendAuth           Reason = "SEND_AUTH"
	ReasonUnsupportedFeature Reason = "UNSUPPORTED_FEATURE"
	ReasonUnknownSMTP        Reason = "UNKNOWN_SMTP"
	ReasonInvalidMessageType Reason = "INVALID_MESSAGE_TYPE"
	ReasonUnknownSlot        Reason = "UNKNOWN_SLOT"
	ReasonNoServerEnabled    Reason = "NO_SERVER_ENABLED"
)

var _ error = &Error{}

// Error is a classified pipeline failure. Kind is one of the Err* sentinels.
type Error struct {
	Kind    error
	Reason  Reason
	Message string
	Cause   error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Reason, e.Message)
	if e.Cause != nil {
		s += fmt.Sprintf(" (cause: %v)", e.Cause)
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the failure kind of e.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

func New(kind error, reason Reason, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Reason:  reason,
		Message: message,
		Cause:   cause,
	}
}

func Newf(kind error, reason Reason, cause error, format string, args ...any) *Error {
	return New(kind, reason, fmt.Sprintf(format, args...), cause)
}

// ReasonOf returns the Reason of the first *Error in err's chain, or the empty
// string when err carries no classification.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// KindOf returns the failure kind of err, or nil when err is unclassified.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
