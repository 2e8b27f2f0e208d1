package buildctx

import (
	"archive/tar"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasriyasoftware/Orchestriq-sub001/internal/archive"
	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/engine"
)

type fixture struct {
	contextDir string
	assetsDir  string
	backupDir  string
	lockDir    string
	tarDir     string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		contextDir: t.TempDir(),
		assetsDir:  t.TempDir(),
		backupDir:  t.TempDir(),
		lockDir:    t.TempDir(),
		tarDir:     t.TempDir(),
	}
	writeFile(t, filepath.Join(f.contextDir, "main.go"), "package main\n", 0o644)
	return f
}

func (f fixture) assembler(builder engine.ArchiveBuilder) *Assembler {
	a := NewAssembler(builder, nil)
	a.backupDir = f.backupDir
	a.lockDir = f.lockDir
	return a
}

func (f fixture) tarBuilder() *archive.TarBuilder {
	b := archive.NewTarBuilder(nil)
	b.TempDir = f.tarDir
	return b
}

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
}

func readTar(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	files := map[string]string{}
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return files
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[hdr.Name] = string(data)
	}
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "unexpected files left in %s", dir)
}

func TestAssemble_DockerfileProdFromOutsideContext(t *testing.T) {
	f := newFixture(t)
	original := "FROM golang:1.24\nRUN go build ./...\n"
	writeFile(t, filepath.Join(f.contextDir, "Dockerfile"), original, 0o640)
	writeFile(t, filepath.Join(f.assetsDir, "Dockerfile.prod"), "FROM alpine\nCOPY . /app\n", 0o644)

	bc, err := f.assembler(f.tarBuilder()).Assemble(context.Background(), engine.BuildImageOptions{
		Name:           "app",
		Context:        f.contextDir,
		DockerfileName: "Dockerfile.prod",
		DockerfilePath: f.assetsDir,
	})
	require.NoError(t, err)
	assert.Equal(t, KindDirectory, bc.Kind)

	files := readTar(t, bc.TarPath)
	assert.Equal(t, "FROM alpine\nCOPY . /app\n", files["Dockerfile.prod"])
	assert.Equal(t, original, files["Dockerfile"])
	assert.Contains(t, files, "main.go")

	// The context directory is back to its original state.
	got, err := os.ReadFile(filepath.Join(f.contextDir, "Dockerfile"))
	require.NoError(t, err)
	assert.Equal(t, original, string(got))
	assert.NoFileExists(t, filepath.Join(f.contextDir, "Dockerfile.prod"))
	assertDirEmpty(t, f.backupDir)

	require.NoError(t, bc.Cleanup())
	assert.NoFileExists(t, bc.TarPath)
}

func TestAssemble_SameNamedDockerfileRestoredByteIdentical(t *testing.T) {
	f := newFixture(t)
	original := "FROM scratch\n# original\x00binary\xff\n"
	writeFile(t, filepath.Join(f.contextDir, "Dockerfile"), original, 0o600)
	writeFile(t, filepath.Join(f.assetsDir, "Dockerfile"), "FROM alpine\n", 0o644)

	var seen string
	builder := engine.ArchiveBuilderFunc(func(ctx context.Context, dir string) (string, error) {
		data, err := os.ReadFile(filepath.Join(dir, "Dockerfile"))
		require.NoError(t, err)
		seen = string(data)
		return f.tarBuilder().Build(ctx, dir)
	})

	bc, err := f.assembler(builder).Assemble(context.Background(), engine.BuildImageOptions{
		Name: "app", Context: f.contextDir, DockerfilePath: f.assetsDir,
	})
	require.NoError(t, err)
	defer bc.Cleanup()

	assert.Equal(t, "FROM alpine\n", seen, "archive must be built from the external Dockerfile")

	got, err := os.ReadFile(filepath.Join(f.contextDir, "Dockerfile"))
	require.NoError(t, err)
	assert.Equal(t, []byte(original), got)

	info, err := os.Stat(filepath.Join(f.contextDir, "Dockerfile"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assertDirEmpty(t, f.backupDir)
}

func TestAssemble_RestoresWhenArchiveFails(t *testing.T) {
	f := newFixture(t)
	original := "FROM debian\n"
	writeFile(t, filepath.Join(f.contextDir, "Dockerfile"), original, 0o644)
	writeFile(t, filepath.Join(f.assetsDir, "Dockerfile"), "FROM alpine\n", 0o644)

	failing := engine.ArchiveBuilderFunc(func(context.Context, string) (string, error) {
		return "", oqerrors.NewFileSystemError("archive build context", "disk full", nil)
	})

	bc, err := f.assembler(failing).Assemble(context.Background(), engine.BuildImageOptions{
		Name: "app", Context: f.contextDir, DockerfilePath: f.assetsDir,
	})
	require.Error(t, err)
	assert.Nil(t, bc)
	assert.True(t, errors.Is(err, oqerrors.ErrFileSystem))

	got, err := os.ReadFile(filepath.Join(f.contextDir, "Dockerfile"))
	require.NoError(t, err)
	assert.Equal(t, original, string(got))
	assertDirEmpty(t, f.backupDir)
}

func TestAssemble_InjectedCopyRemovedWhenNoOriginal(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.assetsDir, "Dockerfile"), "FROM alpine\n", 0o644)

	bc, err := f.assembler(f.tarBuilder()).Assemble(context.Background(), engine.BuildImageOptions{
		Name: "app", Context: f.contextDir, DockerfilePath: f.assetsDir,
	})
	require.NoError(t, err)
	defer bc.Cleanup()

	assert.Equal(t, "FROM alpine\n", readTar(t, bc.TarPath)["Dockerfile"])
	assert.NoFileExists(t, filepath.Join(f.contextDir, "Dockerfile"))
	assertDirEmpty(t, f.backupDir)
}

func TestAssemble_Preconditions(t *testing.T) {
	f := newFixture(t)
	never := engine.ArchiveBuilderFunc(func(context.Context, string) (string, error) {
		t.Fatal("archive must not be built")
		return "", nil
	})

	tests := []struct {
		name string
		opts engine.BuildImageOptions
		want error
	}{
		{"missing context", engine.BuildImageOptions{Name: "app"}, oqerrors.ErrArgumentMissing},
		{"context is not a directory", engine.BuildImageOptions{Name: "app", Context: filepath.Join(f.contextDir, "main.go")}, oqerrors.ErrPreconditionFailed},
		{"context does not exist", engine.BuildImageOptions{Name: "app", Context: filepath.Join(f.contextDir, "nope")}, oqerrors.ErrPreconditionFailed},
		{"dockerfile missing in context", engine.BuildImageOptions{Name: "app", Context: f.contextDir}, oqerrors.ErrPreconditionFailed},
		{"external dockerfile missing", engine.BuildImageOptions{Name: "app", Context: f.contextDir, DockerfilePath: f.assetsDir}, oqerrors.ErrPreconditionFailed},
		{"tar does not exist", engine.BuildImageOptions{Name: "app", Context: filepath.Join(f.contextDir, "ctx.tar.gz")}, oqerrors.ErrPreconditionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.assembler(never).Assemble(context.Background(), tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
	assertDirEmpty(t, f.backupDir)
}

func TestAssemble_WaitsForContextLock(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.assetsDir, "Dockerfile"), "FROM alpine\n", 0o644)
	opts := engine.BuildImageOptions{Name: "app", Context: f.contextDir, DockerfilePath: f.assetsDir}

	a := f.assembler(f.tarBuilder())
	a.lockTimeout = 300 * time.Millisecond

	held := flock.New(a.lockPath(f.contextDir))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	_, err = a.Assemble(context.Background(), opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, oqerrors.ErrPreconditionFailed), "got %v", err)
	assert.NoFileExists(t, filepath.Join(f.contextDir, "Dockerfile"))

	require.NoError(t, held.Unlock())

	bc, err := a.Assemble(context.Background(), opts)
	require.NoError(t, err)
	defer bc.Cleanup()
	assert.Equal(t, "FROM alpine\n", readTar(t, bc.TarPath)["Dockerfile"])
	assertDirEmpty(t, f.lockDir)
}

func TestAssemble_CancelledWhileWaitingForLock(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.assetsDir, "Dockerfile"), "FROM alpine\n", 0o644)
	a := f.assembler(f.tarBuilder())

	held := flock.New(a.lockPath(f.contextDir))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(150*time.Millisecond, cancel)

	_, err = a.Assemble(ctx, engine.BuildImageOptions{Name: "app", Context: f.contextDir, DockerfilePath: f.assetsDir})
	require.Error(t, err)
	assert.True(t, errors.Is(err, oqerrors.ErrTransport), "got %v", err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.NoFileExists(t, filepath.Join(f.contextDir, "Dockerfile"))
}

func TestAssemble_SymlinkedDockerfileIsNotWrittenThrough(t *testing.T) {
	f := newFixture(t)
	sharedDir := t.TempDir()
	shared := filepath.Join(sharedDir, "Dockerfile")
	writeFile(t, shared, "FROM original\n", 0o644)
	link := filepath.Join(f.contextDir, "Dockerfile")
	require.NoError(t, os.Symlink(shared, link))
	writeFile(t, filepath.Join(f.assetsDir, "Dockerfile"), "FROM injected\n", 0o644)

	bc, err := f.assembler(f.tarBuilder()).Assemble(context.Background(), engine.BuildImageOptions{
		Name: "app", Context: f.contextDir, DockerfilePath: f.assetsDir,
	})
	require.NoError(t, err)
	defer bc.Cleanup()

	assert.Equal(t, "FROM injected\n", readTar(t, bc.TarPath)["Dockerfile"])

	got, err := os.ReadFile(shared)
	require.NoError(t, err)
	assert.Equal(t, "FROM original\n", string(got))

	dest, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, shared, dest)
	assertDirEmpty(t, f.backupDir)
}

func TestAssemble_HardLinkedDockerfileIsNotWrittenThrough(t *testing.T) {
	f := newFixture(t)
	other := filepath.Join(t.TempDir(), "Dockerfile")
	writeFile(t, other, "FROM original\n", 0o644)
	target := filepath.Join(f.contextDir, "Dockerfile")
	if err := os.Link(other, target); err != nil {
		t.Skipf("hard links unsupported here: %v", err)
	}
	writeFile(t, filepath.Join(f.assetsDir, "Dockerfile"), "FROM injected\n", 0o644)

	bc, err := f.assembler(f.tarBuilder()).Assemble(context.Background(), engine.BuildImageOptions{
		Name: "app", Context: f.contextDir, DockerfilePath: f.assetsDir,
	})
	require.NoError(t, err)
	defer bc.Cleanup()

	got, err := os.ReadFile(other)
	require.NoError(t, err)
	assert.Equal(t, "FROM original\n", string(got))

	restored, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "FROM original\n", string(restored))
}

func TestAssemble_LockPathIsStablePerContext(t *testing.T) {
	a := NewAssembler(nil, nil)
	assert.Equal(t, a.lockPath("/srv/app"), a.lockPath("/srv/app"))
	assert.NotEqual(t, a.lockPath("/srv/app"), a.lockPath("/srv/api"))
	assert.Regexp(t, `orchestriq-[0-9a-f]{12}\.lock$`, a.lockPath("/srv/app"))
}

func TestAssemble_ExistingTarIsNotOwned(t *testing.T) {
	f := newFixture(t)
	tarPath := filepath.Join(f.tarDir, "context.TAR.GZ")
	writeFile(t, tarPath, "not really gzip", 0o644)

	bc, err := f.assembler(nil).Assemble(context.Background(), engine.BuildImageOptions{Name: "app", Context: tarPath})
	require.NoError(t, err)
	assert.Equal(t, KindTar, bc.Kind)
	assert.Equal(t, tarPath, bc.TarPath)

	require.NoError(t, bc.Cleanup())
	assert.FileExists(t, tarPath)
}

func TestAssemble_Remote(t *testing.T) {
	tests := []struct {
		name       string
		auth       *engine.RemoteAuth
		wantHeader string
	}{
		{"anonymous", nil, ""},
		{"basic", &engine.RemoteAuth{Username: "bob", Password: "s3cret"}, "Basic " + base64.StdEncoding.EncodeToString([]byte("bob:s3cret"))},
		{"bearer", &engine.RemoteAuth{Token: "tok"}, "Bearer tok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bc, err := NewAssembler(nil, nil).Assemble(context.Background(), engine.BuildImageOptions{
				Name: "app", Context: "https://git.example.com/app.tar.gz", Auth: tt.auth,
			})
			require.NoError(t, err)
			assert.Equal(t, KindRemote, bc.Kind)
			assert.Equal(t, "https://git.example.com/app.tar.gz", bc.RemoteURL)
			assert.Equal(t, tt.wantHeader, bc.AuthHeader)
			assert.Empty(t, bc.TarPath)

			_, err = bc.Open()
			assert.Error(t, err)
		})
	}
}

func TestIsTar(t *testing.T) {
	for path, want := range map[string]bool{
		"ctx.tar":     true,
		"ctx.tar.gz":  true,
		"ctx.tgz":     true,
		"ctx.tar.bz2": true,
		"ctx.tar.xz":  true,
		"ctx.zip":     false,
		"/proj":       false,
		"tarball":     false,
	} {
		if got := IsTar(path); got != want {
			t.Errorf("IsTar(%q) = %v, want %v", path, got, want)
		}
	}
}
