package image

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasriyasoftware/Orchestriq-sub001/internal/archive"
	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/engine"
)

// recorder captures requests and replies with a canned response.
type recorder struct {
	requests []*engine.Request
	bodies   [][]byte
	reply    func(req *engine.Request) *http.Response
}

func (r *recorder) Send(_ context.Context, req *engine.Request) (*http.Response, error) {
	r.requests = append(r.requests, req)
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
	}
	r.bodies = append(r.bodies, body)
	return r.reply(req), nil
}

func respond(status int, body string) func(*engine.Request) *http.Response {
	return func(*engine.Request) *http.Response {
		return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: http.Header{}}
	}
}

const buildOK = `{"stream":"Step 1/1 : FROM alpine\n"}
{"aux":{"ID":"sha256:0123"}}
{"stream":"Successfully tagged app:latest\n"}
`

func TestImageReference(t *testing.T) {
	tests := []struct {
		name     string
		opts     engine.BuildImageOptions
		want     string
		wantType error
	}{
		{"default tag", engine.BuildImageOptions{Name: "app"}, "app:latest", nil},
		{"explicit tag", engine.BuildImageOptions{Name: "app", Tag: "1.2"}, "app:1.2", nil},
		{"tag embeds pair", engine.BuildImageOptions{Name: "app", Tag: "other:dev"}, "other:dev", nil},
		{"registry name", engine.BuildImageOptions{Name: "ghcr.io/acme/app", Tag: "v1"}, "ghcr.io/acme/app:v1", nil},
		{"tag in name", engine.BuildImageOptions{Name: "app:1"}, "", oqerrors.ErrArgumentInvalid},
		{"tag in both", engine.BuildImageOptions{Name: "app:1", Tag: "2"}, "", oqerrors.ErrArgumentConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ImageReference(tt.opts)
			if tt.wantType != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantType), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileBuildParams(t *testing.T) {
	tests := []struct {
		name string
		opts engine.BuildImageOptions
		want url.Values
	}{
		{
			name: "minimal",
			opts: engine.BuildImageOptions{Name: "app", Context: "/proj"},
			want: url.Values{"t": {"app:latest"}},
		},
		{
			name: "every flag",
			opts: engine.BuildImageOptions{
				Name:                    "app",
				Tag:                     "2",
				Context:                 "/proj",
				DockerfileName:          "Dockerfile.dev",
				NoCache:                 engine.Bool(true),
				RemoveIntermediate:      engine.Bool(false),
				ForceRemoveIntermediate: engine.Bool(true),
				PullBaseImages:          engine.Bool(true),
				NetworkMode:             "host",
				Platform:                "linux/arm64",
				Labels:                  map[string]string{"team": "core", "app": "api"},
				BuildArgs:               map[string]string{"GO_VERSION": "1.24"},
				Outputs:                 []engine.BuildOutput{{Key: "type", Value: "local"}, {Key: "dest", Value: "out"}},
				Verbose:                 engine.Bool(true),
			},
			want: url.Values{
				"t":           {"app:2"},
				"dockerfile":  {"Dockerfile.dev"},
				"nocache":     {"true"},
				"rm":          {"false"},
				"forcerm":     {"true"},
				"pull":        {"true"},
				"networkmode": {"host"},
				"platform":    {"linux/arm64"},
				"labels":      {`{"app":"api","team":"core"}`},
				"buildargs":   {`{"GO_VERSION":"1.24"}`},
				"outputs":     {"type=local,dest=out"},
				"q":           {"false"},
			},
		},
		{
			name: "quiet when not verbose",
			opts: engine.BuildImageOptions{Name: "app", Context: "/proj", Verbose: engine.Bool(false)},
			want: url.Values{"t": {"app:latest"}, "q": {"true"}},
		},
		{
			name: "remote context",
			opts: engine.BuildImageOptions{Name: "app", Context: "https://example.com/ctx.git"},
			want: url.Values{"t": {"app:latest"}, "remote": {"https://example.com/ctx.git"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := CompileBuildParams(tt.opts)
			require.NoError(t, err)
			got, err := encode("build", params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuild_DockerfileFromOutsideContext(t *testing.T) {
	contextDir := t.TempDir()
	assetsDir := t.TempDir()
	tarDir := t.TempDir()
	original := "FROM golang\n"
	require.NoError(t, os.WriteFile(filepath.Join(contextDir, "Dockerfile"), []byte(original), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(contextDir, "main.go"), []byte("package main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(assetsDir, "Dockerfile.prod"), []byte("FROM alpine\n"), 0o644))

	builder := archive.NewTarBuilder(nil)
	builder.TempDir = tarDir
	rec := &recorder{reply: respond(http.StatusOK, buildOK)}

	err := NewService(rec, builder, nil).Build(context.Background(), engine.BuildImageOptions{
		Name:           "app",
		Context:        contextDir,
		DockerfileName: "Dockerfile.prod",
		DockerfilePath: assetsDir,
	})
	require.NoError(t, err)

	require.Len(t, rec.requests, 1)
	req := rec.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "build", req.Path)
	assert.Equal(t, "dockerfile=Dockerfile.prod&t=app%3Alatest", req.Query.Encode())
	assert.Equal(t, "application/x-tar", req.Header.Get("Content-Type"))

	files := map[string]string{}
	tr := tar.NewReader(bytes.NewReader(rec.bodies[0]))
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, _ := io.ReadAll(tr)
		files[hdr.Name] = string(data)
	}
	assert.Equal(t, "FROM alpine\n", files["Dockerfile.prod"])

	got, err := os.ReadFile(filepath.Join(contextDir, "Dockerfile"))
	require.NoError(t, err)
	assert.Equal(t, original, string(got))
	assert.NoFileExists(t, filepath.Join(contextDir, "Dockerfile.prod"))

	leftovers, _ := os.ReadDir(tarDir)
	assert.Empty(t, leftovers, "temporary context archive must be removed")
}

func TestBuild_StreamErrorStillCleansUp(t *testing.T) {
	contextDir := t.TempDir()
	tarDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(contextDir, "Dockerfile"), []byte("FROM alpine\nRUN false\n"), 0o644))

	builder := archive.NewTarBuilder(nil)
	builder.TempDir = tarDir
	rec := &recorder{reply: respond(http.StatusOK,
		`{"stream":"Step 2/2 : RUN false\n"}`+"\n"+`{"errorDetail":{"code":1,"message":"The command '/bin/sh -c false' returned a non-zero code: 1"},"error":"The command '/bin/sh -c false' returned a non-zero code: 1"}`)}

	err := NewService(rec, builder, nil).Build(context.Background(), engine.BuildImageOptions{Name: "app", Context: contextDir})
	require.Error(t, err)
	assert.True(t, errors.Is(err, oqerrors.ErrStream))
	assert.Contains(t, err.Error(), "non-zero code: 1")

	leftovers, _ := os.ReadDir(tarDir)
	assert.Empty(t, leftovers)
}

func TestBuild_DaemonError(t *testing.T) {
	contextDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(contextDir, "Dockerfile"), []byte("FROM alpine\n"), 0o644))
	builder := archive.NewTarBuilder(nil)
	builder.TempDir = t.TempDir()

	rec := &recorder{reply: respond(http.StatusInternalServerError, `{"message":"no space left on device"}`)}
	err := NewService(rec, builder, nil).Build(context.Background(), engine.BuildImageOptions{Name: "app", Tag: "1", Context: contextDir})

	require.Error(t, err)
	assert.True(t, errors.Is(err, oqerrors.ErrDaemon))
	assert.Equal(t, "build image app:1: no space left on device", err.Error())
}

func TestBuild_RemoteContext(t *testing.T) {
	rec := &recorder{reply: respond(http.StatusOK, buildOK)}
	err := NewService(rec, nil, nil).Build(context.Background(), engine.BuildImageOptions{
		Name:    "app",
		Context: "https://git.example.com/app.tar.gz",
		Auth:    &engine.RemoteAuth{Token: "s3cret"},
	})
	require.NoError(t, err)

	req := rec.requests[0]
	assert.Equal(t, "https://git.example.com/app.tar.gz", req.Query.Get("remote"))
	assert.Equal(t, "Bearer s3cret", req.Header.Get("Authorization"))
	assert.Nil(t, req.Body)
	assert.Empty(t, req.Header.Get("Content-Type"))
}

func TestBuild_InvalidOptionsHaveNoSideEffects(t *testing.T) {
	contextDir := t.TempDir()
	assetsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(contextDir, "Dockerfile"), []byte("FROM a\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(assetsDir, "Dockerfile"), []byte("FROM b\n"), 0o644))

	never := engine.ArchiveBuilderFunc(func(context.Context, string) (string, error) {
		t.Fatal("archive must not be built")
		return "", nil
	})
	rec := &recorder{reply: respond(http.StatusOK, "")}

	tests := []struct {
		name string
		opts engine.BuildImageOptions
		want error
	}{
		{"missing name", engine.BuildImageOptions{Context: contextDir, DockerfilePath: assetsDir}, oqerrors.ErrArgumentMissing},
		{"tag in name", engine.BuildImageOptions{Name: "app:1", Context: contextDir, DockerfilePath: assetsDir}, oqerrors.ErrArgumentInvalid},
		{"tag twice", engine.BuildImageOptions{Name: "app:1", Tag: "2", Context: contextDir, DockerfilePath: assetsDir}, oqerrors.ErrArgumentConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewService(rec, never, nil).Build(context.Background(), tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	assert.Empty(t, rec.requests)
	got, _ := os.ReadFile(filepath.Join(contextDir, "Dockerfile"))
	assert.Equal(t, "FROM a\n", string(got))
}
