package apierr

import (
	"errors"
	"strings"
)

var (
	ErrAuthentication   = errors.New("session expired, please log in again")
	ErrPermission       = errors.New("you do not have permission to perform this action")
	ErrNotFound         = errors.New("the requested resource was not found")
	ErrValidation       = errors.New("the request is invalid")
	ErrConflict         = errors.New("the resource already exists")
	ErrServer           = errors.New("server error, please try again later")
	ErrNetwork          = errors.New("could not reach the server, check your connection")
	ErrTimeout          = errors.New("the server took too long to respond")
	ErrNotConnected     = errors.New("not connected to chat")
	ErrAlreadyConnected = errors.New("already connected to chat")
)

type Kind int

const (
	KindAuthentication Kind = iota + 1
	KindPermission
	KindNotFound
	KindValidation
	KindConflict
	KindServer
	KindNetwork
	KindTimeout
	KindNotConnected
	KindAlreadyConnected
)

var kindSentinels = map[Kind]error{
	KindAuthentication:   ErrAuthentication,
	KindPermission:       ErrPermission,
	KindNotFound:         ErrNotFound,
	KindValidation:       ErrValidation,
	KindConflict:         ErrConflict,
	KindServer:           ErrServer,
	KindNetwork:          ErrNetwork,
	KindTimeout:          ErrTimeout,
	KindNotConnected:     ErrNotConnected,
	KindAlreadyConnected: ErrAlreadyConnected,
}

var kindNames = map[Kind]string{
	KindAuthentication:   "authentication",
	KindPermission:       "permission",
	KindNotFound:         "not_found",
	KindValidation:       "validation",
	KindConflict:         "conflict",
	KindServer:           "server",
	KindNetwork:          "network",
	KindTimeout:          "timeout",
	KindNotConnected:     "not_connected",
	KindAlreadyConnected: "already_connected",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Error is the only error type public operations return. Error() is always
// a human-readable message; the transport cause stays behind Unwrap.
type Error struct {
	Kind    Kind
	Status  int
	Codes   []Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if s, ok := kindSentinels[e.Kind]; ok {
		return s.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrValidation) and friends match by kind.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// HasCode reports whether the backend (or a local check) flagged code.
func (e *Error) HasCode(code Code) bool {
	for _, c := range e.Codes {
		if c == code {
			return true
		}
	}
	return false
}

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Validation builds a local validation error, used by client-side checks
// that run before any request is sent.
func Validation(codes ...Code) *Error {
	return &Error{
		Kind:    KindValidation,
		Status:  400,
		Codes:   codes,
		Message: describe(KindValidation, codes),
	}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func describe(kind Kind, codes []Code) string {
	var parts []string
	for _, c := range codes {
		if msg, ok := c.Message(); ok {
			parts = append(parts, msg)
		}
	}
	if len(parts) == 0 {
		return kindSentinels[kind].Error()
	}
	return strings.Join(parts, "; ")
}
