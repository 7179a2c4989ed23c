package rotation

import (
	"errors"
	"fmt"
)

// ErrorKind names a terminal rotation failure.
type ErrorKind string

const (
	KindRotationDisabled               ErrorKind = "RotationDisabled"
	KindUnknownVersion                 ErrorKind = "UnknownVersion"
	KindNotPending                     ErrorKind = "NotPending"
	KindInvalidStep                    ErrorKind = "InvalidStep"
	KindMissingPrincipalTag            ErrorKind = "MissingPrincipalTag"
	KindMissingPendingKeyTag           ErrorKind = "MissingPendingKeyTag"
	KindCredentialAuthenticationFailed ErrorKind = "CredentialAuthenticationFailed"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrRotationDisabled               = &Error{Kind: KindRotationDisabled}
	ErrUnknownVersion                 = &Error{Kind: KindUnknownVersion}
	ErrNotPending                     = &Error{Kind: KindNotPending}
	ErrInvalidStep                    = &Error{Kind: KindInvalidStep}
	ErrMissingPrincipalTag            = &Error{Kind: KindMissingPrincipalTag}
	ErrMissingPendingKeyTag           = &Error{Kind: KindMissingPendingKeyTag}
	ErrCredentialAuthenticationFailed = &Error{Kind: KindCredentialAuthenticationFailed}
)

// Error is a terminal failure of one step invocation. None of these are
// retried by the Coordinator.
type Error struct {
	Kind     ErrorKind
	SecretID string
	Token    string
	Step     Step
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Step != "" {
		msg = fmt.Sprintf("%s: %s", e.Step, msg)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.SecretID != "" {
		msg += fmt.Sprintf(" (secret %s", e.SecretID)
		if e.Token != "" {
			msg += ", version " + e.Token
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind, true
	}
	return "", false
}

// ProbeClass tells why an authentication probe failed.
type ProbeClass int

const (
	// ClassAuthentication means the authority rejected the credential itself.
	ClassAuthentication ProbeClass = iota + 1
	// ClassAuthorization means the credential was accepted but may not
	// perform the probe action.
	ClassAuthorization
)

func (c ProbeClass) String() string {
	switch c {
	case ClassAuthentication:
		return "authentication"
	case ClassAuthorization:
		return "authorization"
	default:
		return "unknown"
	}
}

// ProbeError is a probe failure the authority was able to classify.
type ProbeError struct {
	Class ProbeClass
	// Code is the authority's error code, e.g. InvalidClientTokenId.
	Code string
	Err  error
}

func (e *ProbeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failure (%s): %v", e.Class, e.Code, e.Err)
	}
	return fmt.Sprintf("%s failure (%s)", e.Class, e.Code)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}
