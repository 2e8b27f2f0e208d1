package app

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"

	"github.com/nasriyasoftware/Orchestriq-sub001/internal/config"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/ui"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/orchestriq"
)

var _ Client = (*orchestriq.Client)(nil)

// NewLogger returns a slog logger backed by a charmbracelet handler. An
// unknown level falls back to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	handler := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	return slog.New(handler)
}

// ClientFactory builds the library client from CLI configuration.
type ClientFactory struct {
	cfg     *config.Config
	logger  *slog.Logger
	console *ui.Console
}

func NewClientFactory(cfg *config.Config, logger *slog.Logger, console *ui.Console) *ClientFactory {
	return &ClientFactory{cfg: cfg, logger: logger, console: console}
}

// Options translates the configuration into client options. Progress goes
// to the console unless verbose logging already reports it.
func (f *ClientFactory) Options() []orchestriq.Option {
	opts := []orchestriq.Option{
		orchestriq.WithHost(f.cfg.Host),
		orchestriq.WithAPIVersion(f.cfg.APIVersion),
		orchestriq.WithVerbose(f.cfg.Verbose),
	}
	if f.logger != nil {
		opts = append(opts, orchestriq.WithLogger(f.logger))
	}
	if f.console != nil && !f.cfg.Verbose {
		opts = append(opts, orchestriq.WithProgress(f.console.PrintEvent))
	}
	return opts
}

func (f *ClientFactory) NewClient() (*orchestriq.Client, error) {
	return orchestriq.New(f.Options()...)
}
