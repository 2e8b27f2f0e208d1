// Package engine defines the contracts between the request compilers and
// their collaborators, plus the option and result types exchanged with
// callers.
package engine

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// Request is one Docker Engine API call. Path is relative to the API root
// (for example "containers/create").
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   io.Reader
}

// Transport performs a Request against the daemon. Non-2xx responses are
// returned as responses, not errors; an error means no response was
// obtained.
type Transport interface {
	Send(ctx context.Context, req *Request) (*http.Response, error)
}

// ArchiveBuilder packs a directory into a new tar file and returns its
// path. The caller owns the file.
type ArchiveBuilder interface {
	Build(ctx context.Context, dir string) (string, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*http.Response, error)

func (f TransportFunc) Send(ctx context.Context, req *Request) (*http.Response, error) {
	return f(ctx, req)
}

// ArchiveBuilderFunc adapts a function to ArchiveBuilder.
type ArchiveBuilderFunc func(ctx context.Context, dir string) (string, error)

func (f ArchiveBuilderFunc) Build(ctx context.Context, dir string) (string, error) {
	return f(ctx, dir)
}
