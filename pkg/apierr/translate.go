package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
)

type errorBody struct {
	Message json.RawMessage `json:"message"`
}

// ParseCodes pulls the known codes out of an error body. "message" may be a
// single string or an array of strings; unknown entries are dropped.
func ParseCodes(body []byte) []Code {
	var eb errorBody
	if len(body) == 0 || json.Unmarshal(body, &eb) != nil || len(eb.Message) == 0 {
		return nil
	}

	var raw []string
	var one string
	if err := json.Unmarshal(eb.Message, &one); err == nil {
		raw = []string{one}
	} else if err := json.Unmarshal(eb.Message, &raw); err != nil {
		return nil
	}

	var codes []Code
	for _, s := range raw {
		if c := Code(s); c.Known() {
			codes = append(codes, c)
		}
	}
	return codes
}

func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindPermission
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

// FromStatus translates a non-2xx response into the taxonomy.
func FromStatus(status int, body []byte) *Error {
	kind := KindForStatus(status)
	codes := ParseCodes(body)
	return &Error{
		Kind:    kind,
		Status:  status,
		Codes:   codes,
		Message: describe(kind, codes),
	}
}

// FromTransport translates a failure where no response was received.
func FromTransport(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(KindTimeout, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return New(KindTimeout, err)
	}
	return New(KindNetwork, err)
}
