package image

import (
	"context"
	"fmt"
	"net/http"

	"github.com/docker/docker/api/types/image"

	"github.com/nasriyasoftware/Orchestriq-sub001/internal/daemon"
	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/validate"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/engine"
)

type TagParams struct {
	Repo  string `url:"repo"`
	Tag   string `url:"tag"`
	Force bool   `url:"force"`
}

type RemoveParams struct {
	Force   bool `url:"force"`
	NoPrune bool `url:"noprune"`
}

// Tag adds repo:tag as a reference to an existing image.
func (s *Service) Tag(ctx context.Context, opts engine.TagImageOptions) error {
	if err := validate.Struct("tag image", opts); err != nil {
		return err
	}
	tag := opts.Tag
	if tag == "" {
		tag = engine.DefaultTag
	}
	op := fmt.Sprintf("tag image %s as %s:%s", opts.Source, opts.Repo, tag)

	values, err := encode(op, TagParams{Repo: opts.Repo, Tag: tag, Force: opts.Force})
	if err != nil {
		return err
	}
	resp, err := daemon.Send(ctx, s.transport, &engine.Request{
		Method: http.MethodPost,
		Path:   "images/" + opts.Source + "/tag",
		Query:  values,
	}, op)
	if err != nil {
		return err
	}
	daemon.Discard(resp)
	return nil
}

// Remove deletes an image and reports what was untagged and deleted.
func (s *Service) Remove(ctx context.Context, opts engine.RemoveImageOptions) ([]image.DeleteResponse, error) {
	if err := validate.Struct("remove image", opts); err != nil {
		return nil, err
	}
	op := "remove image " + opts.Name

	values, err := encode(op, RemoveParams{Force: opts.Force, NoPrune: opts.NoPrune})
	if err != nil {
		return nil, err
	}
	resp, err := daemon.Send(ctx, s.transport, &engine.Request{
		Method: http.MethodDelete,
		Path:   "images/" + opts.Name,
		Query:  values,
	}, op)
	if err != nil {
		return nil, err
	}

	var deleted []image.DeleteResponse
	if err := daemon.DecodeJSON(resp, op, &deleted); err != nil {
		return nil, err
	}
	return deleted, nil
}

// Inspect looks an image up by name or ID. An unknown image is NotFound,
// not an error.
func (s *Service) Inspect(ctx context.Context, name string) (engine.Lookup[image.InspectResponse], error) {
	if name == "" {
		return engine.NotFound[image.InspectResponse](), oqerrors.NewArgumentMissing("inspect image", "image name is required")
	}
	return daemon.Lookup[image.InspectResponse](ctx, s.transport, &engine.Request{
		Method: http.MethodGet,
		Path:   "images/" + name + "/json",
	}, "inspect image "+name)
}
