// Package compiler translates container templates into Engine
// containers/create requests and sends them.
package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"

	"github.com/nasriyasoftware/Orchestriq-sub001/internal/daemon"
	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/validate"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/engine"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/template"
)

const createPath = "containers/create"

// CreateRequest is the containers/create body. Optional keys are left out of
// the JSON entirely when empty.
type CreateRequest struct {
	Image        string                  `json:"Image"`
	User         string                  `json:"User,omitempty"`
	Cmd          []string                `json:"Cmd,omitempty"`
	Entrypoint   []string                `json:"Entrypoint,omitempty"`
	Env          []string                `json:"Env,omitempty"`
	Healthcheck  *container.HealthConfig `json:"Healthcheck,omitempty"`
	Volumes      map[string]struct{}     `json:"Volumes,omitempty"`
	HostConfig   HostConfig              `json:"HostConfig"`
	ExposedPorts nat.PortSet             `json:"ExposedPorts,omitempty"`
}

type HostConfig struct {
	Binds []string `json:"Binds,omitempty"`
}

// Compiled is one service's request together with the container name it is
// created under.
type Compiled struct {
	Service       string
	ContainerName string
	Request       CreateRequest
}

// Compiler issues one containers/create request per template service.
type Compiler struct {
	transport engine.Transport
	env       EnvMerger
	logger    *slog.Logger
}

func NewCompiler(transport engine.Transport, logger *slog.Logger, verbose bool) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{
		transport: transport,
		env:       EnvMerger{Logger: logger, Verbose: verbose},
		logger:    logger,
	}
}

// Compile builds every service's request without sending anything. It fails
// on the first service that cannot be compiled.
func (c *Compiler) Compile(tmpl *template.ContainerTemplate) ([]Compiled, error) {
	if tmpl == nil || len(tmpl.Services) == 0 {
		return nil, oqerrors.NewArgumentInvalid("create containers", "template defines no services")
	}
	if err := validate.Struct("create containers", tmpl); err != nil {
		return nil, err
	}

	compiled := make([]Compiled, 0, len(tmpl.Services))
	for _, svc := range tmpl.Services {
		req, err := c.compileService(tmpl, svc)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, Compiled{
			Service:       svc.Name,
			ContainerName: svc.EffectiveContainerName(),
			Request:       req,
		})
	}
	return compiled, nil
}

func (c *Compiler) compileService(tmpl *template.ContainerTemplate, svc *template.Service) (CreateRequest, error) {
	if svc.Image == "" {
		return CreateRequest{}, oqerrors.NewArgumentInvalid("create containers",
			fmt.Sprintf("service %q does not define an image", svc.Name))
	}

	env, err := c.env.Merge(tmpl, svc)
	if err != nil {
		return CreateRequest{}, oqerrors.Wrap(fmt.Sprintf("service %q", svc.Name), err)
	}
	volumes, binds := CompileVolumes(svc.Volumes)

	return CreateRequest{
		Image:        svc.Image,
		User:         svc.User,
		Cmd:          svc.Command,
		Entrypoint:   svc.Entrypoint,
		Env:          env,
		Healthcheck:  CompileHealthcheck(svc.Healthcheck),
		Volumes:      volumes,
		HostConfig:   HostConfig{Binds: binds},
		ExposedPorts: exposedPorts(svc.Ports),
	}, nil
}

func exposedPorts(ports []int) nat.PortSet {
	if len(ports) == 0 {
		return nil
	}
	set := make(nat.PortSet, len(ports))
	for _, p := range ports {
		set[nat.Port(strconv.Itoa(p)+"/tcp")] = struct{}{}
	}
	return set
}

// CreateFromTemplate compiles every service, then creates the containers one
// after another in declaration order. If a create fails the containers made
// so far are returned along with the error; they are not removed.
func (c *Compiler) CreateFromTemplate(ctx context.Context, tmpl *template.ContainerTemplate) (engine.CreateResult, error) {
	compiled, err := c.Compile(tmpl)
	if err != nil {
		return engine.CreateResult{}, err
	}

	result := engine.CreateResult{Containers: make([]engine.CreatedContainer, 0, len(compiled))}
	for _, cc := range compiled {
		op := fmt.Sprintf("create container %q for service %q", cc.ContainerName, cc.Service)

		body, err := json.Marshal(cc.Request)
		if err != nil {
			return result, oqerrors.NewArgumentInvalid(op, err.Error())
		}

		id, err := c.create(ctx, op, cc.ContainerName, body)
		if err != nil {
			return result, err
		}

		c.logger.Info("Created container", "service", cc.Service, "name", cc.ContainerName, "id", id)
		result.Containers = append(result.Containers, engine.CreatedContainer{ID: id, Name: cc.ContainerName})
	}
	return result, nil
}

// CreateRaw submits caller-built create options unchanged, except that a
// "name" entry is moved to the query string.
func (c *Compiler) CreateRaw(ctx context.Context, opts map[string]any) (engine.CreatedContainer, error) {
	if opts == nil {
		return engine.CreatedContainer{}, oqerrors.NewArgumentInvalid("create container", "options must not be nil")
	}

	payload := make(map[string]any, len(opts))
	for k, v := range opts {
		payload[k] = v
	}

	var name string
	if raw, ok := payload["name"]; ok {
		s, isString := raw.(string)
		if !isString {
			return engine.CreatedContainer{}, oqerrors.NewArgumentInvalid("create container",
				fmt.Sprintf("name must be a string, got %T", raw))
		}
		name = s
		delete(payload, "name")
	}

	op := "create container"
	if name != "" {
		op = fmt.Sprintf("create container %q", name)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return engine.CreatedContainer{}, oqerrors.NewArgumentInvalid(op, err.Error())
	}

	id, err := c.create(ctx, op, name, body)
	if err != nil {
		return engine.CreatedContainer{}, err
	}
	return engine.CreatedContainer{ID: id, Name: name}, nil
}

func (c *Compiler) create(ctx context.Context, op, name string, body []byte) (string, error) {
	query := url.Values{}
	if name != "" {
		query.Set("name", name)
	}

	resp, err := daemon.Send(ctx, c.transport, &engine.Request{
		Method: http.MethodPost,
		Path:   createPath,
		Query:  query,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   bytes.NewReader(body),
	}, op)
	if err != nil {
		return "", err
	}

	var created container.CreateResponse
	if err := daemon.DecodeJSON(resp, op, &created); err != nil {
		return "", err
	}
	for _, w := range created.Warnings {
		c.logger.Warn("Engine warning", "operation", op, "warning", w)
	}
	return created.ID, nil
}

// Inspect looks a container up by name or ID. An unknown container is
// NotFound, not an error.
func (c *Compiler) Inspect(ctx context.Context, id string) (engine.Lookup[container.InspectResponse], error) {
	if id == "" {
		return engine.NotFound[container.InspectResponse](), oqerrors.NewArgumentMissing("inspect container", "container name or ID is required")
	}
	return daemon.Lookup[container.InspectResponse](ctx, c.transport, &engine.Request{
		Method: http.MethodGet,
		Path:   "containers/" + id + "/json",
	}, "inspect container "+id)
}
