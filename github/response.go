package github

import (
	"fmt"
	"net/http"
)

// Response is the raw result of one API call: status code, headers and
// the fully-read body. The client never interprets it; deciding what a
// status or body means is the caller's job.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// UnexpectedResponseError is returned when a response's status code or
// body shape violates the expected contract. It carries the raw response
// so diagnostics can show exactly what the server said.
type UnexpectedResponseError struct {
	Response *Response
}

func (err *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response: status_code: %d content: %s",
		err.Response.StatusCode, err.Response.Body)
}
