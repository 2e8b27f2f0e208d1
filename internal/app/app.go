// Package app implements the orchestriq CLI workflows on top of the
// library client.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docker/docker/api/types"
	dockerimage "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/stringid"

	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/image"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/parser"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/ui"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/engine"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/template"
)

// Client is the part of the orchestriq client the CLI drives.
type Client interface {
	CreateContainers(ctx context.Context, tmpl *template.ContainerTemplate) (engine.CreateResult, error)
	BuildImage(ctx context.Context, opts engine.BuildImageOptions) error
	PullImage(ctx context.Context, opts engine.PullImageOptions) error
	PushImage(ctx context.Context, opts engine.PushImageOptions) error
	TagImage(ctx context.Context, opts engine.TagImageOptions) error
	RemoveImage(ctx context.Context, opts engine.RemoveImageOptions) ([]dockerimage.DeleteResponse, error)
	InspectImage(ctx context.Context, name string) (engine.Lookup[dockerimage.InspectResponse], error)
	Ping(ctx context.Context) (types.Ping, error)
}

type App struct {
	client  Client
	console *ui.Console
	logger  *slog.Logger
}

func New(client Client, console *ui.Console, logger *slog.Logger) *App {
	if console == nil {
		console = ui.NewConsole()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{client: client, console: console, logger: logger}
}

type CreateOptions struct {
	TemplatePath string
	// Compose reads TemplatePath as a docker-compose file.
	Compose bool
	// RecordPath, when set, receives a JSON record of the run.
	RecordPath string
}

// Create loads a template and creates its containers.
func (a *App) Create(ctx context.Context, opts CreateOptions) error {
	var (
		tmpl *template.ContainerTemplate
		err  error
	)
	if opts.Compose {
		tmpl, err = parser.ParseCompose(ctx, opts.TemplatePath)
	} else {
		tmpl, err = parser.ParseTemplate(opts.TemplatePath)
	}
	if err != nil {
		return err
	}
	a.logger.Info("Template loaded", "path", opts.TemplatePath, "services", tmpl.Len())

	result, err := a.client.CreateContainers(ctx, tmpl)
	for _, c := range result.Containers {
		a.console.PrintSuccess(fmt.Sprintf("Created container %s (%s)", c.Name, stringid.TruncateID(c.ID)))
	}

	if opts.RecordPath != "" {
		if saveErr := saveRecord(opts.RecordPath, newRecord(opts.TemplatePath, result, err)); saveErr != nil {
			a.logger.Warn("Failed to write run record", "path", opts.RecordPath, "error", saveErr)
		} else {
			a.logger.Info("Run record written", "path", opts.RecordPath)
		}
	}

	if err != nil {
		if n := len(result.Containers); n > 0 {
			a.console.PrintWarning(fmt.Sprintf("%d container(s) created before the failure were left in place", n))
		}
		return err
	}
	return nil
}

func (a *App) Build(ctx context.Context, opts engine.BuildImageOptions) error {
	if err := a.client.BuildImage(ctx, opts); err != nil {
		return err
	}
	ref, _ := image.ImageReference(opts)
	a.console.PrintSuccess("Built image " + ref)
	return nil
}

func (a *App) Pull(ctx context.Context, opts engine.PullImageOptions) error {
	if err := a.client.PullImage(ctx, opts); err != nil {
		return err
	}
	a.console.PrintSuccess("Pulled image " + opts.Image)
	return nil
}

func (a *App) Push(ctx context.Context, opts engine.PushImageOptions) error {
	if err := a.client.PushImage(ctx, opts); err != nil {
		return err
	}
	a.console.PrintSuccess("Pushed image " + opts.Name)
	return nil
}

func (a *App) Tag(ctx context.Context, opts engine.TagImageOptions) error {
	if err := a.client.TagImage(ctx, opts); err != nil {
		return err
	}
	tag := opts.Tag
	if tag == "" {
		tag = engine.DefaultTag
	}
	a.console.PrintSuccess(fmt.Sprintf("Tagged %s as %s:%s", opts.Source, opts.Repo, tag))
	return nil
}

func (a *App) Remove(ctx context.Context, opts engine.RemoveImageOptions) error {
	deleted, err := a.client.RemoveImage(ctx, opts)
	if err != nil {
		return err
	}
	for _, d := range deleted {
		if d.Untagged != "" {
			a.console.PrintInfo("Untagged: " + d.Untagged)
		}
		if d.Deleted != "" {
			a.console.PrintInfo("Deleted: " + d.Deleted)
		}
	}
	return nil
}

// Inspect prints the image as JSON. A missing image is reported as a
// NotFound error so the CLI exits non-zero.
func (a *App) Inspect(ctx context.Context, name string) error {
	lookup, err := a.client.InspectImage(ctx, name)
	if err != nil {
		return err
	}
	img, ok := lookup.Get()
	if !ok {
		return oqerrors.NewNotFoundError("inspect image "+name, 404, "no such image")
	}
	return a.console.PrintJSON(img)
}

func (a *App) Ping(ctx context.Context) error {
	ping, err := a.client.Ping(ctx)
	if err != nil {
		return err
	}
	a.console.PrintSuccess(fmt.Sprintf("Docker daemon is reachable (API %s, %s)", ping.APIVersion, ping.OSType))
	return nil
}
