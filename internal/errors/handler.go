package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/nasriyasoftware/Orchestriq-sub001/internal/ui"
)

const (
	logFileName    = "orchestriq.log"
	maxLogFileSize = 10 * 1024 * 1024
	maxLogFiles    = 5
)

// Handler reports errors to the user and records them in a JSON log file.
type Handler struct {
	logger  *slog.Logger
	console *ui.Console
	logPath string
}

// NewHandler opens (and rotates if needed) the log file under logDir. An
// empty logDir selects ORCHESTRIQ_LOG_DIR or the OS-standard location.
func NewHandler(logDir string) (*Handler, error) {
	logFile, err := openLogFile(logDir)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	return &Handler{
		logger:  logger,
		console: ui.NewConsole(),
		logPath: logFile.Name(),
	}, nil
}

// LogPath is the file the handler writes to.
func (h *Handler) LogPath() string {
	return h.logPath
}

func (h *Handler) Handle(err error) {
	if err == nil {
		return
	}

	var oe *OrchestriqError
	if errors.As(err, &oe) {
		h.logStructured(oe)
		h.console.PrintError(h.console.FormatErrorMessage(err.Error(), causeOf(oe), oe.Suggestion))
		return
	}

	h.logger.Error("Unhandled error occurred",
		"error", err.Error(),
		"type", "generic",
	)
	h.console.PrintError(err.Error())
}

// causeOf returns the underlying failure when it adds information beyond
// the error message itself.
func causeOf(err *OrchestriqError) string {
	if err.OriginalErr != nil && err.Cause != "" {
		return err.OriginalErr.Error()
	}
	return ""
}

func (h *Handler) logStructured(err *OrchestriqError) {
	attrs := []slog.Attr{
		slog.String("error", err.Error()),
		slog.String("type", TypeName(err.Type)),
		slog.String("context", err.Context),
	}
	if err.StatusCode != 0 {
		attrs = append(attrs, slog.Int("status", err.StatusCode))
	}
	if err.OriginalErr != nil {
		attrs = append(attrs, slog.String("cause", err.OriginalErr.Error()))
	}
	if err.Suggestion != "" {
		attrs = append(attrs, slog.String("suggestion", err.Suggestion))
	}

	h.logger.LogAttrs(context.TODO(), slog.LevelError, "Orchestriq error occurred", attrs...)
}

// TypeName maps an error category to the stable name used in logs.
func TypeName(errType error) string {
	switch errType {
	case ErrArgumentInvalid:
		return "argument_invalid"
	case ErrArgumentMissing:
		return "argument_missing"
	case ErrArgumentConflict:
		return "argument_conflict"
	case ErrPreconditionFailed:
		return "precondition_failed"
	case ErrDaemon:
		return "daemon_error"
	case ErrStream:
		return "stream_error"
	case ErrNotFound:
		return "not_found"
	case ErrTransport:
		return "transport_failed"
	case ErrFileSystem:
		return "filesystem_failed"
	case ErrConfigInvalid:
		return "config_invalid"
	default:
		return "unknown"
	}
}

func standardLogDir() (string, error) {
	if dir := os.Getenv("ORCHESTRIQ_LOG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Logs", "Orchestriq"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Orchestriq", "logs"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "Orchestriq", "logs"), nil
	default:
		return filepath.Join(home, ".local", "share", "orchestriq", "logs"), nil
	}
}

// resolveLogDir picks the first writable directory: the requested one, the
// standard one, then the working directory.
func resolveLogDir(requested string) (string, error) {
	dir := requested
	if dir == "" {
		var err error
		if dir, err = standardLogDir(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v. Falling back to current directory for logging.\n", err)
			return os.Getwd()
		}
	}

	if err := os.MkdirAll(dir, 0750); err == nil && writable(dir) {
		return dir, nil
	}

	fmt.Fprintf(os.Stderr, "Warning: cannot write to log directory %s. Falling back to current directory for logging.\n", dir)
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("cannot determine current directory for fallback logging: %w", err)
	}
	return cwd, nil
}

func writable(dir string) bool {
	probe := filepath.Join(dir, ".write_probe")
	f, err := os.Create(probe)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

// rotate shifts log -> log.1 -> ... -> log.N, dropping the oldest.
func rotate(logPath string) error {
	os.Remove(fmt.Sprintf("%s.%d", logPath, maxLogFiles))
	for i := maxLogFiles - 1; i > 0; i-- {
		from := fmt.Sprintf("%s.%d", logPath, i)
		if _, err := os.Stat(from); err == nil {
			if err := os.Rename(from, fmt.Sprintf("%s.%d", logPath, i+1)); err != nil {
				slog.Warn("Failed to rotate log file", "path", from, "error", err)
			}
		}
	}
	if _, err := os.Stat(logPath); err == nil {
		return os.Rename(logPath, logPath+".1")
	}
	return nil
}

func openLogFile(requested string) (*os.File, error) {
	dir, err := resolveLogDir(requested)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(dir, logFileName)
	if info, err := os.Stat(logPath); err == nil && info.Size() >= maxLogFileSize {
		if err := rotate(logPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to rotate log file: %v\n", err)
		}
	}

	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}
