// Package stream reads the newline-delimited JSON progress bodies returned
// by the Engine's build, pull and push endpoints.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/docker/docker/pkg/jsonmessage"

	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
)

// Stream is a forward-only cursor over progress events. It cannot be
// restarted; once Next returns false the stream is finished and Err reports
// why.
type Stream struct {
	body    io.ReadCloser
	decoder *json.Decoder
	op      string
	current jsonmessage.JSONMessage
	err     error
	done    bool
}

// New wraps body. op names the operation for error context.
func New(body io.ReadCloser, op string) *Stream {
	return &Stream{
		body:    body,
		decoder: json.NewDecoder(body),
		op:      op,
	}
}

// Next advances to the next event. It returns false at the end of the
// stream, on a malformed record, or when the Engine reports an error.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}

	var msg jsonmessage.JSONMessage
	if err := s.decoder.Decode(&msg); err != nil {
		s.done = true
		if !errors.Is(err, io.EOF) {
			s.err = oqerrors.NewStreamError(s.op, "malformed progress record: "+err.Error())
		}
		return false
	}

	if msg.Error != nil || msg.ErrorMessage != "" {
		s.done = true
		s.err = oqerrors.NewStreamError(s.op, errorText(msg))
		return false
	}

	s.current = msg
	return true
}

func errorText(msg jsonmessage.JSONMessage) string {
	if msg.Error != nil && msg.Error.Message != "" {
		return msg.Error.Message
	}
	if msg.ErrorMessage != "" {
		return msg.ErrorMessage
	}
	return "unknown error"
}

// Event returns the record read by the last successful Next.
func (s *Stream) Event() *jsonmessage.JSONMessage {
	return &s.current
}

// Err is nil when the stream ended normally.
func (s *Stream) Err() error {
	return s.err
}

func (s *Stream) Close() error {
	s.done = true
	return s.body.Close()
}

// Observer receives every record of a stream as it is read.
type Observer func(*jsonmessage.JSONMessage)

// Drain consumes s to the end and closes it. Events are logged at info
// level only when verbose is set; observe, if non-nil, sees all of them.
// Cancelling ctx stops reading between records.
func Drain(ctx context.Context, s *Stream, verbose bool, logger *slog.Logger, observe Observer) error {
	defer s.Close()
	if logger == nil {
		logger = slog.Default()
	}

	for s.Next() {
		if err := ctx.Err(); err != nil {
			return oqerrors.NewTransportError(s.op, "", err)
		}
		if verbose {
			logEvent(logger, s.op, s.Event())
		}
		if observe != nil {
			observe(s.Event())
		}
	}
	return s.Err()
}

func logEvent(logger *slog.Logger, op string, ev *jsonmessage.JSONMessage) {
	attrs := []any{"operation", op}
	if ev.ID != "" {
		attrs = append(attrs, "id", ev.ID)
	}
	if ev.Progress != nil {
		if p := ev.Progress.String(); p != "" {
			attrs = append(attrs, "progress", p)
		}
	}
	if ev.Aux != nil {
		attrs = append(attrs, "aux", string(*ev.Aux))
	}

	switch {
	case ev.Stream != "":
		logger.Info(strings.TrimRight(ev.Stream, "\r\n"), attrs...)
	case ev.Status != "":
		logger.Info(ev.Status, attrs...)
	default:
		logger.Debug("Progress event", attrs...)
	}
}
