// Package daemon turns Engine HTTP responses into values or categorised
// errors.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/docker/docker/api/types"

	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/engine"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 * 1024

// Send performs req and fails with a DaemonError unless the Engine answered
// with a 2xx status. On success the caller owns resp.Body.
func Send(ctx context.Context, t engine.Transport, req *engine.Request, op string) (*http.Response, error) {
	resp, err := t.Send(ctx, req)
	if err != nil {
		return nil, oqerrors.NewTransportError(op, "Check that the Docker daemon is running and reachable", err)
	}
	if err := Check(resp, op); err != nil {
		return nil, err
	}
	return resp, nil
}

// Check returns nil for a 2xx response. Otherwise it consumes and closes the
// body and returns a DaemonError carrying the Engine's message, or the
// status text when the body has none.
func Check(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	return oqerrors.NewDaemonError(op, resp.StatusCode, Message(resp))
}

// Message extracts the "message" field of an Engine error body.
func Message(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var er types.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Message != "" {
		return er.Message
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return fmt.Sprintf("unexpected status %d", resp.StatusCode)
}

// DecodeJSON decodes a successful response body into v and closes it.
func DecodeJSON(resp *http.Response, op string, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return oqerrors.NewDaemonError(op, resp.StatusCode, "malformed response: "+err.Error())
	}
	return nil
}

// Discard drains and closes a response whose body carries nothing of
// interest.
func Discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// Lookup performs a read request. A 404 is a NotFound result rather than
// an error; any other failure is a DaemonError.
func Lookup[T any](ctx context.Context, t engine.Transport, req *engine.Request, op string) (engine.Lookup[T], error) {
	resp, err := t.Send(ctx, req)
	if err != nil {
		return engine.NotFound[T](), oqerrors.NewTransportError(op, "Check that the Docker daemon is running and reachable", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		Discard(resp)
		return engine.NotFound[T](), nil
	}
	if err := Check(resp, op); err != nil {
		return engine.NotFound[T](), err
	}

	var v T
	if err := DecodeJSON(resp, op, &v); err != nil {
		return engine.NotFound[T](), err
	}
	return engine.Found(v), nil
}

// Ping checks that the daemon answers and reports what it advertises in the
// response headers.
func Ping(ctx context.Context, t engine.Transport) (types.Ping, error) {
	resp, err := Send(ctx, t, &engine.Request{Method: http.MethodGet, Path: "_ping"}, "ping docker daemon")
	if err != nil {
		return types.Ping{}, err
	}
	defer Discard(resp)

	return types.Ping{
		APIVersion:   resp.Header.Get("Api-Version"),
		OSType:       resp.Header.Get("Ostype"),
		Experimental: resp.Header.Get("Docker-Experimental") == "true",
	}, nil
}
