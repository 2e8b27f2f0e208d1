// Package transport is the default HTTP Transport to a Docker daemon over a
// unix socket, named pipe or TCP.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/docker/docker/client"
	"github.com/docker/go-connections/sockets"

	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/engine"
)

// dummyHost is the Host header used for socket connections, where the URL
// host carries no meaning.
const dummyHost = "api.moby.localhost"

const userAgent = "orchestriq"

type Options struct {
	// Host is a daemon address such as unix:///var/run/docker.sock or
	// tcp://127.0.0.1:2375. Empty means DOCKER_HOST, then auto-detection.
	Host string
	// APIVersion pins requests to /v<APIVersion>/. Empty uses the daemon's
	// default version.
	APIVersion string
	// Timeout bounds each whole request. Zero means no limit, which is what
	// long builds and pulls need.
	Timeout time.Duration
	Logger  *slog.Logger
}

// HTTPTransport implements engine.Transport.
type HTTPTransport struct {
	client   *http.Client
	host     string
	scheme   string
	addr     string
	basePath string
	logger   *slog.Logger
}

var _ engine.Transport = (*HTTPTransport)(nil)

func New(opts Options) (*HTTPTransport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	host, err := ResolveHost(opts.Host)
	if err != nil {
		return nil, err
	}

	hostURL, err := client.ParseHostURL(host)
	if err != nil {
		return nil, oqerrors.NewConfigError("configure docker host", fmt.Sprintf("invalid host %q", host),
			"Use a host like unix:///var/run/docker.sock or tcp://127.0.0.1:2375", err)
	}

	tr := &http.Transport{}
	if err := sockets.ConfigureTransport(tr, hostURL.Scheme, hostURL.Host); err != nil {
		return nil, oqerrors.NewConfigError("configure docker host", fmt.Sprintf("unsupported host %q", host), "", err)
	}

	addr := hostURL.Host
	if hostURL.Scheme != "tcp" {
		addr = dummyHost
	}

	basePath := hostURL.Path
	if v := strings.TrimPrefix(opts.APIVersion, "v"); v != "" {
		basePath = path.Join("/", basePath, "v"+v)
	}

	logger.Debug("Configured Docker transport", "host", host, "apiVersion", opts.APIVersion)
	return &HTTPTransport{
		client:   &http.Client{Transport: tr, Timeout: opts.Timeout},
		host:     host,
		scheme:   "http",
		addr:     addr,
		basePath: basePath,
		logger:   logger,
	}, nil
}

// Host is the daemon address in use.
func (t *HTTPTransport) Host() string {
	return t.host
}

// Send performs req. Non-2xx responses are returned, not converted to
// errors.
func (t *HTTPTransport) Send(ctx context.Context, req *engine.Request) (*http.Response, error) {
	u := url.URL{
		Scheme: t.scheme,
		Host:   t.addr,
		Path:   path.Join("/", t.basePath, req.Path),
	}
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), req.Body)
	if err != nil {
		return nil, err
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("User-Agent", userAgent)

	t.logger.Debug("Docker API request", "method", method, "path", u.Path)
	return t.client.Do(httpReq)
}

// ResolveHost picks the daemon address: explicit, then DOCKER_HOST, then the
// first Docker socket found on this machine, then the SDK default.
func ResolveHost(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(client.EnvOverrideHost); env != "" {
		return env, nil
	}
	for _, p := range socketPaths() {
		if _, err := os.Stat(p); err == nil {
			return "unix://" + p, nil
		}
	}
	return client.DefaultDockerHost, nil
}

// socketPaths lists candidate daemon sockets in order of preference.
func socketPaths() []string {
	paths := []string{"/var/run/docker.sock"}

	home, err := os.UserHomeDir()
	if err == nil {
		paths = append(paths, filepath.Join(home, ".docker", "run", "docker.sock"))
		if runtime.GOOS == "darwin" {
			paths = append(paths,
				filepath.Join(home, ".colima", "default", "docker.sock"),
				filepath.Join(home, ".orbstack", "run", "docker.sock"),
			)
		}
	}
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "docker.sock"))
	}
	return paths
}
