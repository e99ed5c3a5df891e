package client

import (
	"fmt"
	"strings"
)

type ErrorKind string

const (
	KindTransport  ErrorKind = "transport"
	KindHTTPStatus ErrorKind = "http_status"
	KindParse      ErrorKind = "parse"
)

// FetchError is the single error type returned by Fetch.
type FetchError struct {
	Kind       ErrorKind
	Endpoint   string
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return strings.TrimSpace(fmt.Sprintf("%d %s %s", e.StatusCode, e.Status, e.Body))
	case KindParse:
		return fmt.Sprintf("parse %s response: %v", e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("request %s: %v", e.Endpoint, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
