// Package orchestriq compiles container templates and image operations into
// Docker Engine API requests.
//
// A Client talks to the daemon through an engine.Transport. By default it
// dials the local daemon (DOCKER_HOST or an auto-detected socket) and builds
// directory contexts with a .dockerignore-aware tar writer; both can be
// replaced with options.
package orchestriq

import (
	"context"
	"log/slog"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/nasriyasoftware/Orchestriq-sub001/internal/archive"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/compiler"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/daemon"
	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
	oqimage "github.com/nasriyasoftware/Orchestriq-sub001/internal/image"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/transport"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/engine"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/template"
)

// Error categories, matched with errors.Is.
var (
	ErrArgumentInvalid    = oqerrors.ErrArgumentInvalid
	ErrArgumentMissing    = oqerrors.ErrArgumentMissing
	ErrArgumentConflict   = oqerrors.ErrArgumentConflict
	ErrPreconditionFailed = oqerrors.ErrPreconditionFailed
	ErrDaemon             = oqerrors.ErrDaemon
	ErrStream             = oqerrors.ErrStream
	ErrNotFound           = oqerrors.ErrNotFound
	ErrTransport          = oqerrors.ErrTransport
	ErrFileSystem         = oqerrors.ErrFileSystem
	ErrConfigInvalid      = oqerrors.ErrConfigInvalid
)

// Error is the structured error returned by every Client operation.
type Error = oqerrors.OrchestriqError

// StatusCode returns the HTTP status attached to a daemon error, or 0.
func StatusCode(err error) int {
	return oqerrors.StatusCode(err)
}

type Client struct {
	transport engine.Transport
	compiler  *compiler.Compiler
	images    *oqimage.Service
	logger    *slog.Logger
}

type settings struct {
	transport  engine.Transport
	archiver   engine.ArchiveBuilder
	logger     *slog.Logger
	verbose    bool
	host       string
	apiVersion string
	progress   func(*jsonmessage.JSONMessage)
}

type Option func(*settings)

// WithTransport replaces the default HTTP transport.
func WithTransport(t engine.Transport) Option {
	return func(s *settings) { s.transport = t }
}

// WithArchiveBuilder replaces the default tar writer for directory contexts.
func WithArchiveBuilder(a engine.ArchiveBuilder) Option {
	return func(s *settings) { s.archiver = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithVerbose enables diagnostic logging, such as skipped env files.
func WithVerbose(v bool) Option {
	return func(s *settings) { s.verbose = v }
}

// WithProgress receives every progress record of builds, pulls and pushes,
// for example to render them in a terminal.
func WithProgress(fn func(*jsonmessage.JSONMessage)) Option {
	return func(s *settings) { s.progress = fn }
}

// WithHost selects the daemon address for the default transport,
// e.g. "unix:///var/run/docker.sock" or "tcp://10.0.0.2:2375".
func WithHost(host string) Option {
	return func(s *settings) { s.host = host }
}

// WithAPIVersion pins requests of the default transport to /v<version>.
func WithAPIVersion(version string) Option {
	return func(s *settings) { s.apiVersion = version }
}

func New(opts ...Option) (*Client, error) {
	s := settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	if s.transport == nil {
		t, err := transport.New(transport.Options{
			Host:       s.host,
			APIVersion: s.apiVersion,
			Logger:     s.logger,
		})
		if err != nil {
			return nil, err
		}
		s.transport = t
	}
	if s.archiver == nil {
		s.archiver = archive.NewTarBuilder(s.logger)
	}

	images := oqimage.NewService(s.transport, s.archiver, s.logger)
	if s.progress != nil {
		images.SetProgress(s.progress)
	}

	return &Client{
		transport: s.transport,
		compiler:  compiler.NewCompiler(s.transport, s.logger, s.verbose),
		images:    images,
		logger:    s.logger,
	}, nil
}

// CreateContainers sends one create request per template service, in
// declaration order. On failure the containers created so far are returned
// along with the error; they are not removed.
func (c *Client) CreateContainers(ctx context.Context, tmpl *template.ContainerTemplate) (engine.CreateResult, error) {
	return c.compiler.CreateFromTemplate(ctx, tmpl)
}

// CreateContainer posts a raw containers/create body. A "name" key is sent
// as the query parameter instead.
func (c *Client) CreateContainer(ctx context.Context, raw map[string]any) (engine.CreatedContainer, error) {
	return c.compiler.CreateRaw(ctx, raw)
}

func (c *Client) InspectContainer(ctx context.Context, id string) (engine.Lookup[container.InspectResponse], error) {
	return c.compiler.Inspect(ctx, id)
}

// BuildImage assembles the build context, streams it to the daemon and
// waits for the build to finish. The context directory is left exactly as
// it was found, even when the build fails.
func (c *Client) BuildImage(ctx context.Context, opts engine.BuildImageOptions) error {
	return c.images.Build(ctx, opts)
}

func (c *Client) PullImage(ctx context.Context, opts engine.PullImageOptions) error {
	return c.images.Pull(ctx, opts)
}

func (c *Client) PushImage(ctx context.Context, opts engine.PushImageOptions) error {
	return c.images.Push(ctx, opts)
}

func (c *Client) TagImage(ctx context.Context, opts engine.TagImageOptions) error {
	return c.images.Tag(ctx, opts)
}

func (c *Client) RemoveImage(ctx context.Context, opts engine.RemoveImageOptions) ([]image.DeleteResponse, error) {
	return c.images.Remove(ctx, opts)
}

func (c *Client) InspectImage(ctx context.Context, name string) (engine.Lookup[image.InspectResponse], error) {
	return c.images.Inspect(ctx, name)
}

// Ping checks that the daemon is reachable and reports its API version.
func (c *Client) Ping(ctx context.Context) (types.Ping, error) {
	return daemon.Ping(ctx, c.transport)
}
