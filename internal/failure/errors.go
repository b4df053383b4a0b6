package failure

import (
	"errors"
	"fmt"
)

// Kind classifies why a stage failed.
type Kind string

const (
	// KindExtraction covers navigation, missing image element or source, bad inline data.
	KindExtraction Kind = "extraction"
	// KindTransport covers network errors and non-2xx responses.
	KindTransport Kind = "transport"
	// KindShape covers responses that do not have the expected structure.
	KindShape Kind = "shape"
)

// Error is a failure raised by one pipeline stage.
type Error struct {
	Stage string
	Kind  Kind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s failure: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPError represents a non-2xx status from a remote endpoint
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func Extraction(stage string, err error) error { return &Error{Stage: stage, Kind: KindExtraction, Err: err} }
func Transport(stage string, err error) error  { return &Error{Stage: stage, Kind: KindTransport, Err: err} }
func Shape(stage string, err error) error      { return &Error{Stage: stage, Kind: KindShape, Err: err} }

// KindOf returns the failure kind carried by err, or "" when err is not a stage failure.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// StageOf returns the stage name carried by err.
func StageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Stage
	}
	return ""
}

// StatusCode returns the HTTP status of the first HTTPError in the chain, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// Excerpt trims a response body for inclusion in an error message.
func Excerpt(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
