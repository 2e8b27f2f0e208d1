package image

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/distribution/reference"
	"github.com/docker/docker/api/types/registry"

	"github.com/nasriyasoftware/Orchestriq-sub001/internal/daemon"
	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/stream"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/validate"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/engine"
)

type PullParams struct {
	FromImage string `url:"fromImage"`
	Tag       string `url:"tag,omitempty"`
	Platform  string `url:"platform,omitempty"`
}

type PushParams struct {
	Tag string `url:"tag,omitempty"`
}

// splitReference separates a repository from its tag or digest. References
// the parser rejects are split on the last ':' after the last '/', leaving
// syntax checks to the Engine.
func splitReference(ref string) (name, tag string) {
	if named, err := reference.ParseNormalizedNamed(ref); err == nil {
		name = reference.FamiliarName(named)
		if digested, ok := named.(reference.Digested); ok {
			return name, digested.Digest().String()
		}
		if tagged, ok := named.(reference.Tagged); ok {
			return name, tagged.Tag()
		}
		return name, ""
	}

	if i := strings.LastIndex(ref, ":"); i > strings.LastIndex(ref, "/") {
		return ref[:i], ref[i+1:]
	}
	return ref, ""
}

// resolveTag combines a reference's embedded tag with an explicit one.
func resolveTag(op, ref, explicit string) (string, string, error) {
	name, embedded := splitReference(ref)
	switch {
	case embedded != "" && explicit != "" && embedded != explicit:
		return "", "", oqerrors.NewArgumentConflict(op,
			fmt.Sprintf("reference %q already carries %q but tag %q was given", ref, embedded, explicit),
			"Pass the tag either in the reference or through the tag option")
	case embedded != "":
		return name, embedded, nil
	case explicit != "":
		return name, explicit, nil
	default:
		return name, engine.DefaultTag, nil
	}
}

func registryAuth(op string, auth *registry.AuthConfig) (string, error) {
	cfg := registry.AuthConfig{}
	if auth != nil {
		cfg = *auth
	}
	encoded, err := registry.EncodeAuthConfig(cfg)
	if err != nil {
		return "", oqerrors.NewArgumentInvalid(op, "registry auth: "+err.Error())
	}
	return encoded, nil
}

// CompilePullParams resolves the fromImage and tag query values.
func CompilePullParams(opts engine.PullImageOptions) (PullParams, error) {
	name, tag, err := resolveTag("pull image", opts.Image, opts.Tag)
	if err != nil {
		return PullParams{}, err
	}
	return PullParams{FromImage: name, Tag: tag, Platform: opts.Platform}, nil
}

// Pull fetches an image and waits for the progress stream to finish.
func (s *Service) Pull(ctx context.Context, opts engine.PullImageOptions) error {
	if err := validate.Struct("pull image", opts); err != nil {
		return err
	}
	params, err := CompilePullParams(opts)
	if err != nil {
		return err
	}
	op := fmt.Sprintf("pull image %s:%s", params.FromImage, params.Tag)

	values, err := encode(op, params)
	if err != nil {
		return err
	}
	header := http.Header{}
	if opts.Auth != nil {
		auth, err := registryAuth(op, opts.Auth)
		if err != nil {
			return err
		}
		header.Set(registry.AuthHeader, auth)
	}

	resp, err := daemon.Send(ctx, s.transport, &engine.Request{
		Method: http.MethodPost,
		Path:   "images/create",
		Query:  values,
		Header: header,
	}, op)
	if err != nil {
		return err
	}
	if err := stream.Drain(ctx, stream.New(resp.Body, op), opts.Verbose, s.logger, s.progress); err != nil {
		return err
	}

	s.logger.Info("Pulled image", "image", params.FromImage, "tag", params.Tag)
	return nil
}

// Push uploads an image to its registry. The Engine requires an auth header
// on push, so an empty one is sent when no credentials are given.
func (s *Service) Push(ctx context.Context, opts engine.PushImageOptions) error {
	if err := validate.Struct("push image", opts); err != nil {
		return err
	}
	name, tag, err := resolveTag("push image", opts.Name, opts.Tag)
	if err != nil {
		return err
	}
	op := fmt.Sprintf("push image %s:%s", name, tag)

	values, err := encode(op, PushParams{Tag: tag})
	if err != nil {
		return err
	}
	auth, err := registryAuth(op, opts.Auth)
	if err != nil {
		return err
	}

	resp, err := daemon.Send(ctx, s.transport, &engine.Request{
		Method: http.MethodPost,
		Path:   "images/" + name + "/push",
		Query:  values,
		Header: http.Header{registry.AuthHeader: []string{auth}},
	}, op)
	if err != nil {
		return err
	}
	if err := stream.Drain(ctx, stream.New(resp.Body, op), opts.Verbose, s.logger, s.progress); err != nil {
		return err
	}

	s.logger.Info("Pushed image", "image", name, "tag", tag)
	return nil
}
