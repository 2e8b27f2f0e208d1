package image

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/nasriyasoftware/Orchestriq-sub001/internal/buildctx"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/daemon"
	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/stream"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/validate"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/engine"
)

// BuildParams is the query string of POST /build. Unset fields are not sent.
type BuildParams struct {
	T           string `url:"t,omitempty"`
	NoCache     *bool  `url:"nocache,omitempty"`
	Rm          *bool  `url:"rm,omitempty"`
	ForceRm     *bool  `url:"forcerm,omitempty"`
	Pull        *bool  `url:"pull,omitempty"`
	NetworkMode string `url:"networkmode,omitempty"`
	Platform    string `url:"platform,omitempty"`
	Labels      string `url:"labels,omitempty"`
	BuildArgs   string `url:"buildargs,omitempty"`
	Dockerfile  string `url:"dockerfile,omitempty"`
	Outputs     string `url:"outputs,omitempty"`
	Q           *bool  `url:"q,omitempty"`
	Remote      string `url:"remote,omitempty"`
}

// ImageReference returns the name:tag the build is tagged with. A tag that
// already carries a name:tag pair is used as is.
func ImageReference(opts engine.BuildImageOptions) (string, error) {
	const op = "build image"

	if strings.Contains(opts.Name, ":") {
		if opts.Tag != "" {
			return "", oqerrors.NewArgumentConflict(op,
				fmt.Sprintf("name %q embeds a tag and tag %q was also given", opts.Name, opts.Tag),
				"Pass the tag only through the tag option")
		}
		return "", oqerrors.NewArgumentInvalid(op,
			fmt.Sprintf("name %q must not contain ':'; pass the tag through the tag option", opts.Name))
	}

	switch {
	case opts.Tag == "":
		return opts.Name + ":" + engine.DefaultTag, nil
	case strings.Contains(opts.Tag, ":"):
		return opts.Tag, nil
	default:
		return opts.Name + ":" + opts.Tag, nil
	}
}

// CompileBuildParams maps opts to the /build query. It performs no I/O.
func CompileBuildParams(opts engine.BuildImageOptions) (BuildParams, error) {
	const op = "build image"

	ref, err := ImageReference(opts)
	if err != nil {
		return BuildParams{}, err
	}

	params := BuildParams{
		T:           ref,
		NoCache:     opts.NoCache,
		Rm:          opts.RemoveIntermediate,
		ForceRm:     opts.ForceRemoveIntermediate,
		Pull:        opts.PullBaseImages,
		NetworkMode: opts.NetworkMode,
		Platform:    opts.Platform,
		Dockerfile:  opts.DockerfileName,
	}

	if len(opts.Labels) > 0 {
		data, err := json.Marshal(opts.Labels)
		if err != nil {
			return BuildParams{}, oqerrors.NewArgumentInvalid(op, "labels: "+err.Error())
		}
		params.Labels = string(data)
	}
	if len(opts.BuildArgs) > 0 {
		data, err := json.Marshal(opts.BuildArgs)
		if err != nil {
			return BuildParams{}, oqerrors.NewArgumentInvalid(op, "build args: "+err.Error())
		}
		params.BuildArgs = string(data)
	}
	if len(opts.Outputs) > 0 {
		pairs := make([]string, 0, len(opts.Outputs))
		for _, o := range opts.Outputs {
			pairs = append(pairs, o.Key+"="+o.Value)
		}
		params.Outputs = strings.Join(pairs, ",")
	}
	if opts.Verbose != nil {
		quiet := !*opts.Verbose
		params.Q = &quiet
	}
	if buildctx.IsRemote(opts.Context) {
		params.Remote = opts.Context
	}
	return params, nil
}

// Build validates opts, assembles the context, uploads it and waits for the
// progress stream to finish. Temporary archives are removed on every path.
func (s *Service) Build(ctx context.Context, opts engine.BuildImageOptions) error {
	if err := validate.Struct("build image", opts); err != nil {
		return err
	}
	params, err := CompileBuildParams(opts)
	if err != nil {
		return err
	}
	op := "build image " + params.T

	values, err := encode(op, params)
	if err != nil {
		return err
	}

	bc, err := s.assembler.Assemble(ctx, opts)
	if err != nil {
		return oqerrors.Wrap(op, err)
	}
	defer func() {
		if err := bc.Cleanup(); err != nil {
			s.logger.Warn("Failed to remove build context archive", "path", bc.TarPath, "error", err)
		}
	}()

	req := &engine.Request{
		Method: http.MethodPost,
		Path:   "build",
		Query:  values,
		Header: http.Header{},
	}
	if bc.Kind == buildctx.KindRemote {
		if bc.AuthHeader != "" {
			req.Header.Set("Authorization", bc.AuthHeader)
		}
	} else {
		body, err := bc.Open()
		if err != nil {
			return oqerrors.Wrap(op, err)
		}
		defer body.Close()
		req.Body = body
		req.Header.Set("Content-Type", "application/x-tar")
	}

	s.logger.Debug("Sending build request", "reference", params.T, "context", bc.Kind.String())
	resp, err := daemon.Send(ctx, s.transport, req, op)
	if err != nil {
		return err
	}
	if err := stream.Drain(ctx, stream.New(resp.Body, op), opts.IsVerbose(), s.logger, s.progress); err != nil {
		return err
	}

	s.logger.Info("Built image", "reference", params.T)
	return nil
}
