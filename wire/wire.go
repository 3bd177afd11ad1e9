// Package wire holds the HTTP/1.1 message types shared across the route
// table, task context, and connection driver: standard method/target/
// headers/body records, with multi-map, case-insensitive header semantics
// provided by net/http.Header.
package wire

import "net/http"

// Request is an HTTP/1.1 request as delivered to the core once the header
// and body have both been read.
type Request struct {
	Method  string
	Target  string // raw request-target, including any query string
	Header  http.Header
	Body    []byte
	Remote  string // peer address, for logging/metrics aspects
}

// Response is an HTTP/1.1 response under construction by a Task.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewResponse returns a Response defaulted to 200 OK with empty headers.
func NewResponse() *Response {
	return &Response{StatusCode: 200, Header: make(http.Header)}
}
