package device

import (
	"errors"
	"fmt"
)

// ErrNotJSON is returned when a typed call gets a non-JSON body.
var ErrNotJSON = errors.New("response is not JSON")

// TransportError is a response outside the 2xx range.
type TransportError struct {
	Method  string
	Path    string
	Status  int
	Snippet string // best effort, empty when the body could not be read
}

func (e *TransportError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("%s %s -> %d: %s", e.Method, e.Path, e.Status, e.Snippet)
	}
	return fmt.Sprintf("%s %s -> %d", e.Method, e.Path, e.Status)
}

// DecodeError is a body that could not be decoded into the expected shape.
type DecodeError struct {
	Method      string
	Path        string
	ContentType string
	Err         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s %s: cannot decode %s body: %v", e.Method, e.Path, e.ContentType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ResourceError is a failed binary download.
type ResourceError struct {
	Path   string
	Status int // 0 when no response was received
	Err    error
}

func (e *ResourceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("download %s failed with status %d", e.Path, e.Status)
	}
	return fmt.Sprintf("download %s failed: %v", e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }
