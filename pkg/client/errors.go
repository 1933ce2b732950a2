package client

import (
	"errors"
	"fmt"
)

// ErrLocalFileMissing is returned by Post and Put when the local source
// cannot be read. No request is sent in that case.
var ErrLocalFileMissing = errors.New("local file missing")

// RemoteError is a non-2xx response from the server.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// TransportError is a failure to complete the HTTP exchange
// (connection refused, reset, malformed URL).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not a RemoteError.
func StatusCode(err error) int {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}
