package archive

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tarEntries(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	entries := map[string]string{}
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = string(data)
	}
	return entries
}

func TestTarBuilder_Build(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "Dockerfile"), []byte("FROM alpine\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "main.go"), []byte("package main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "debug.log"), []byte("noise"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "node_modules", "x"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "node_modules", "x", "index.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, ".dockerignore"), []byte("# ignore\n*.log\nnode_modules\n"), 0o644))

	out := t.TempDir()
	b := NewTarBuilder(nil)
	b.TempDir = out

	path, err := b.Build(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, out, filepath.Dir(path))
	assert.Regexp(t, `^orchestriq-context-[0-9a-f-]{36}\.tar$`, filepath.Base(path))

	entries := tarEntries(t, path)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	assert.Equal(t, []string{".dockerignore", "Dockerfile", "main.go"}, names)
	assert.Equal(t, "FROM alpine\n", entries["Dockerfile"])
}

func TestTarBuilder_CancelledContext(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "Dockerfile"), []byte("FROM alpine\n"), 0o644))
	out := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewTarBuilder(nil)
	b.TempDir = out

	_, err := b.Build(ctx, src)
	require.Error(t, err)

	leftovers, _ := os.ReadDir(out)
	assert.Empty(t, leftovers, "partial tar must be removed")
}
