package gateway

import (
	"errors"
	"fmt"
)

// RemoteError is the normalized failure for every remote operation. Callers
// receive either a typed payload or one of these; transport status codes
// never cross this boundary.
type RemoteError struct {
	Op      string // logical operation name, e.g. "generateQuestions"
	Message string // human-readable message from the service envelope
	Detail  string // optional secondary detail from the envelope
	Cause   error  // underlying transport or decode error, if any
}

func (e *RemoteError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Cause
}

// UserMessage extracts the display message from err. For remote errors that
// is the service-provided message verbatim; anything else falls back to
// Error(). Views use this so users never see operation prefixes.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Message
	}
	return err.Error()
}
