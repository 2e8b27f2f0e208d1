// Package archive packs build-context directories into tar files.
package archive

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/docker/docker/pkg/archive"
	"github.com/google/uuid"
	"github.com/moby/patternmatcher/ignorefile"

	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
)

const ignoreFileName = ".dockerignore"

// TarBuilder writes uncompressed tar archives of a directory to TempDir,
// honouring the directory's .dockerignore.
type TarBuilder struct {
	TempDir string
	Logger  *slog.Logger
}

func NewTarBuilder(logger *slog.Logger) *TarBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &TarBuilder{TempDir: os.TempDir(), Logger: logger}
}

// Build archives dir and returns the path of the new tar file. The caller
// must remove it.
func (b *TarBuilder) Build(ctx context.Context, dir string) (string, error) {
	excludes, err := readIgnoreFile(dir)
	if err != nil {
		return "", err
	}

	tarStream, err := archive.TarWithOptions(dir, &archive.TarOptions{
		ExcludePatterns: excludes,
		Compression:     archive.Uncompressed,
	})
	if err != nil {
		return "", oqerrors.NewFileSystemError("archive build context", "failed to read "+dir, err)
	}
	defer tarStream.Close()

	tempDir := b.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	path := filepath.Join(tempDir, "orchestriq-context-"+uuid.NewString()+".tar")

	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", oqerrors.NewFileSystemError("archive build context", "failed to create "+path, err)
	}

	_, copyErr := io.Copy(out, readerWithContext(ctx, tarStream))
	closeErr := out.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", oqerrors.NewFileSystemError("archive build context", "failed to write "+path, err)
	}

	b.Logger.Debug("Archived build context", "dir", dir, "tar", path, "excludes", len(excludes))
	return path, nil
}

func readIgnoreFile(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, ignoreFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, oqerrors.NewFileSystemError("archive build context", "failed to open "+ignoreFileName, err)
	}
	defer f.Close()

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, oqerrors.NewArgumentInvalid("archive build context", "invalid "+ignoreFileName+": "+err.Error())
	}
	return patterns, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
