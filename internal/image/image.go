// Package image compiles and sends the Engine's image endpoints: build,
// pull, push, tag, remove and inspect.
package image

import (
	"log/slog"
	"net/url"

	"github.com/google/go-querystring/query"

	"github.com/nasriyasoftware/Orchestriq-sub001/internal/buildctx"
	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/stream"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/engine"
)

// Service sends image requests through a Transport.
type Service struct {
	transport engine.Transport
	assembler *buildctx.Assembler
	logger    *slog.Logger
	progress  stream.Observer
}

func NewService(transport engine.Transport, archiver engine.ArchiveBuilder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		transport: transport,
		assembler: buildctx.NewAssembler(archiver, logger),
		logger:    logger,
	}
}

// SetProgress registers an observer for the build, pull and push progress
// records.
func (s *Service) SetProgress(observe stream.Observer) {
	s.progress = observe
}

// encode turns a params struct into query values via its url tags.
func encode(op string, params any) (url.Values, error) {
	values, err := query.Values(params)
	if err != nil {
		return nil, oqerrors.NewArgumentInvalid(op, err.Error())
	}
	return values, nil
}
