// Package buildctx resolves the build context of an image build: a remote
// URL, an existing tar file, or a local directory that is archived on the
// fly, optionally with a Dockerfile taken from elsewhere.
package buildctx

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/engine"
)

// Kind is the resolved shape of a build context.
type Kind int

const (
	KindDirectory Kind = iota
	KindTar
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindTar:
		return "tar"
	case KindRemote:
		return "remote"
	default:
		return "directory"
	}
}

const defaultLockTimeout = 30 * time.Second

var tarExtensions = []string{".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tar.xz"}

// Context is an assembled build context. Callers must defer Cleanup.
type Context struct {
	Kind Kind
	// RemoteURL and AuthHeader are set for KindRemote.
	RemoteURL  string
	AuthHeader string
	// TarPath is set for KindTar and KindDirectory.
	TarPath string

	owned bool
}

// Open returns the tar archive for upload.
func (c *Context) Open() (io.ReadCloser, error) {
	if c.TarPath == "" {
		return nil, oqerrors.NewArgumentInvalid("open build context", "a remote context has no local archive")
	}
	f, err := os.Open(c.TarPath)
	if err != nil {
		return nil, oqerrors.NewFileSystemError("open build context", "failed to open "+c.TarPath, err)
	}
	return f, nil
}

// Cleanup deletes the archive if it was created for this build. Caller
// supplied tar files are left alone. It is safe to call more than once.
func (c *Context) Cleanup() error {
	if c == nil || !c.owned || c.TarPath == "" {
		return nil
	}
	c.owned = false
	if err := os.Remove(c.TarPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return oqerrors.NewFileSystemError("clean up build context", "failed to remove "+c.TarPath, err)
	}
	return nil
}

// Assembler turns BuildImageOptions into a Context.
type Assembler struct {
	archiver    engine.ArchiveBuilder
	logger      *slog.Logger
	backupDir   string
	lockDir     string
	lockTimeout time.Duration
	now         func() time.Time
}

func NewAssembler(archiver engine.ArchiveBuilder, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		archiver:    archiver,
		logger:      logger,
		backupDir:   os.TempDir(),
		lockDir:     os.TempDir(),
		lockTimeout: defaultLockTimeout,
		now:         time.Now,
	}
}

// IsRemote reports whether a context string is an http(s) URL.
func IsRemote(contextPath string) bool {
	lower := strings.ToLower(contextPath)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// IsTar reports whether a context path names a tar archive.
func IsTar(contextPath string) bool {
	lower := strings.ToLower(contextPath)
	for _, ext := range tarExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Assemble resolves opts.Context. For a directory with a DockerfilePath
// outside it, the external Dockerfile is copied into the directory for the
// duration of the archive step and the directory is put back exactly as it
// was afterwards, whether or not archiving succeeded.
func (a *Assembler) Assemble(ctx context.Context, opts engine.BuildImageOptions) (*Context, error) {
	switch {
	case opts.Context == "":
		return nil, oqerrors.NewArgumentMissing("assemble build context", "context is required")
	case IsRemote(opts.Context):
		return &Context{
			Kind:       KindRemote,
			RemoteURL:  opts.Context,
			AuthHeader: authHeader(opts.Auth),
		}, nil
	case IsTar(opts.Context):
		if _, err := os.Stat(opts.Context); err != nil {
			return nil, oqerrors.NewPreconditionError("assemble build context",
				fmt.Sprintf("context archive %s does not exist", opts.Context), "", err)
		}
		return &Context{Kind: KindTar, TarPath: opts.Context}, nil
	default:
		return a.assembleDirectory(ctx, opts)
	}
}

func authHeader(auth *engine.RemoteAuth) string {
	switch {
	case auth == nil:
		return ""
	case auth.Token != "":
		return "Bearer " + auth.Token
	case auth.Username != "":
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(auth.Username+":"+auth.Password))
	}
	return ""
}

func (a *Assembler) assembleDirectory(ctx context.Context, opts engine.BuildImageOptions) (bc *Context, err error) {
	const op = "assemble build context"

	contextDir, err := filepath.Abs(opts.Context)
	if err != nil {
		return nil, oqerrors.NewArgumentInvalid(op, err.Error())
	}
	info, err := os.Stat(contextDir)
	if err != nil || !info.IsDir() {
		return nil, oqerrors.NewPreconditionError(op, fmt.Sprintf("context directory %s does not exist", contextDir),
			"Pass an existing directory, a tar archive or an http(s) URL as the build context", err)
	}

	name := opts.DockerfileName
	if name == "" {
		name = engine.DefaultDockerfileName
	}
	dockerfileDir := contextDir
	if opts.DockerfilePath != "" {
		if dockerfileDir, err = filepath.Abs(opts.DockerfilePath); err != nil {
			return nil, oqerrors.NewArgumentInvalid(op, err.Error())
		}
	}

	if dockerfileDir == contextDir {
		if err := requireFile(filepath.Join(contextDir, name)); err != nil {
			return nil, err
		}
	} else {
		unlock, err := a.lockContext(ctx, contextDir)
		if err != nil {
			return nil, err
		}
		defer unlock()

		release, err := a.swapDockerfile(filepath.Join(dockerfileDir, name), filepath.Join(contextDir, name))
		if err != nil {
			return nil, err
		}
		defer func() {
			if releaseErr := release(); releaseErr != nil {
				if bc != nil {
					_ = bc.Cleanup()
				}
				bc, err = nil, errors.Join(err, releaseErr)
			}
		}()
	}

	tarPath, err := a.archiver.Build(ctx, contextDir)
	if err != nil {
		return nil, oqerrors.Wrap(op, err)
	}
	return &Context{Kind: KindDirectory, TarPath: tarPath, owned: true}, nil
}

// lockPath names the lock file guarding Dockerfile swaps in contextDir.
func (a *Assembler) lockPath(contextDir string) string {
	sum := sha256.Sum256([]byte(contextDir))
	return filepath.Join(a.lockDir, "orchestriq-"+hex.EncodeToString(sum[:])[:12]+".lock")
}

// lockContext serializes Dockerfile swaps on one context directory across
// goroutines and processes. The lock file is removed on release.
func (a *Assembler) lockContext(ctx context.Context, contextDir string) (func(), error) {
	const op = "lock build context"
	path := a.lockPath(contextDir)

	lockCtx, cancel := context.WithTimeout(ctx, a.lockTimeout)
	defer cancel()

	for {
		fileLock := flock.New(path)
		locked, err := fileLock.TryLockContext(lockCtx, 100*time.Millisecond)
		switch {
		case err == nil && locked:
		case ctx.Err() != nil:
			return nil, oqerrors.NewTransportError(op, "", ctx.Err())
		case err != nil && !errors.Is(err, context.DeadlineExceeded):
			return nil, oqerrors.NewFileSystemError(op, "failed to acquire lock for "+contextDir, err)
		default:
			return nil, oqerrors.NewPreconditionError(op,
				fmt.Sprintf("build context %s is locked by another build", contextDir),
				"Wait for the other build using this context to finish", err)
		}

		// A holder that released in the meantime removed the file we
		// locked, so the lock only counts if it is still the one on disk.
		held, heldErr := fileLock.Stat()
		current, currentErr := os.Stat(path)
		if heldErr == nil && currentErr == nil && os.SameFile(held, current) {
			return func() {
				if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
					a.logger.Debug("Failed to remove build context lock file", "path", path, "error", err)
				}
				if err := fileLock.Unlock(); err != nil {
					a.logger.Warn("Failed to release build context lock", "path", path, "error", err)
				}
			}, nil
		}
		_ = fileLock.Unlock()
	}
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err == nil && info.Mode().IsRegular() {
		return nil
	}
	return oqerrors.NewPreconditionError("assemble build context",
		fmt.Sprintf("Dockerfile %s does not exist", path),
		"Check the dockerfile name and path options", err)
}

// swapDockerfile installs external at target, backing up any file already
// there. A symlink at target is set aside and re-created rather than
// written through. The returned release func undoes the swap and must run
// exactly once.
func (a *Assembler) swapDockerfile(external, target string) (func() error, error) {
	const op = "swap Dockerfile"

	if err := requireFile(external); err != nil {
		return nil, err
	}

	var backup, linkDest string
	var targetMode fs.FileMode
	info, err := os.Lstat(target)
	switch {
	case err == nil && info.Mode()&fs.ModeSymlink != 0:
		if linkDest, err = os.Readlink(target); err != nil {
			return nil, oqerrors.NewFileSystemError(op, "failed to read link "+target, err)
		}
	case err == nil && info.Mode().IsRegular():
		targetMode = info.Mode().Perm()
		backup = filepath.Join(a.backupDir, fmt.Sprintf("%s.orchestriq-backup-%d", filepath.Base(target), a.now().UnixNano()))
		if err := copyFile(target, backup, targetMode); err != nil {
			_ = os.Remove(backup)
			return nil, oqerrors.NewFileSystemError(op, "failed to back up "+target, err)
		}
	case err == nil:
		return nil, oqerrors.NewPreconditionError(op, target+" is not a regular file", "", nil)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, oqerrors.NewFileSystemError(op, "failed to inspect "+target, err)
	}

	release := func() error {
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return oqerrors.NewFileSystemError(op, "failed to remove injected "+target, err)
		}
		if linkDest != "" {
			if err := os.Symlink(linkDest, target); err != nil {
				return oqerrors.NewFileSystemError(op, "failed to re-create link "+target+" -> "+linkDest, err)
			}
			return nil
		}
		if backup == "" {
			return nil
		}
		if err := copyFile(backup, target, targetMode); err != nil {
			return oqerrors.NewFileSystemError(op, "failed to restore "+target+" from "+backup, err)
		}
		if err := os.Remove(backup); err != nil {
			return oqerrors.NewFileSystemError(op, "failed to remove backup "+backup, err)
		}
		return nil
	}

	// The injected copy must be a new file, never a write through a link.
	if linkDest != "" || backup != "" {
		if err := os.Remove(target); err != nil {
			swapErr := oqerrors.NewFileSystemError(op, "failed to set aside "+target, err)
			if backup != "" {
				_ = os.Remove(backup)
			}
			return nil, swapErr
		}
	}
	if err := copyFile(external, target, 0o644); err != nil {
		swapErr := oqerrors.NewFileSystemError(op, "failed to copy "+external+" into the build context", err)
		return nil, errors.Join(swapErr, release())
	}

	a.logger.Debug("Swapped Dockerfile into build context", "from", external, "to", target, "backup", backup, "link", linkDest)
	return release, nil
}

// copyFile writes src to a new file at dst. It fails if dst exists.
func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, mode)
}
