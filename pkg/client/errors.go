package client

import (
	"errors"
	"fmt"
)

var (
	ErrMissingToken = errors.New("login response has no token")
	ErrInvalidJSON  = errors.New("response is not valid JSON")
)

// StatusError is returned when the API answers with anything but 200 OK.
// Body holds the raw response text.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsStatus reports whether err carries the given HTTP status code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}
