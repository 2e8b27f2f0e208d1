package compiler

import (
	"bytes"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/template"
)

// EnvMerger resolves a service's effective environment from, in order of
// increasing precedence: template env files, the template environment,
// service env files and the service environment.
type EnvMerger struct {
	Logger  *slog.Logger
	Verbose bool
}

// orderedEnv keeps each key at the position of its first insertion while
// letting later sources replace its value.
type orderedEnv struct {
	keys   []string
	values map[string]string
}

func (e *orderedEnv) set(key, value string) {
	if _, ok := e.values[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.values[key] = value
}

func (e *orderedEnv) merge(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.set(k, m[k])
	}
}

// Merge returns the "KEY=VALUE" list for svc, or nil when no variable is
// defined by any source.
func (m EnvMerger) Merge(tmpl *template.ContainerTemplate, svc *template.Service) ([]string, error) {
	env := &orderedEnv{values: map[string]string{}}

	if err := m.mergeFiles(env, tmpl.EnvFiles); err != nil {
		return nil, err
	}
	env.merge(tmpl.Environment)
	if err := m.mergeFiles(env, svc.EnvFiles); err != nil {
		return nil, err
	}
	env.merge(svc.Environment)

	if len(env.keys) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(env.keys))
	for _, k := range env.keys {
		out = append(out, k+"="+env.values[k])
	}
	return out, nil
}

func (m EnvMerger) mergeFiles(env *orderedEnv, paths []string) error {
	for _, path := range paths {
		if !filepath.IsAbs(path) {
			if m.Verbose {
				m.logger().Warn("Skipping env file with relative path", "path", path)
			}
			continue
		}

		values, err := readEnvFile(path)
		if err != nil {
			return err
		}
		env.merge(values)
	}
	return nil
}

// dollarMark stands in for '$' while godotenv parses, so values keep any
// $VAR or ${VAR} text as written instead of being interpolated.
const dollarMark = "\x00"

// readEnvFile parses one env file with godotenv's quoting and comment rules
// but without variable expansion.
func readEnvFile(path string) (map[string]string, error) {
	op := "read env file " + path

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, oqerrors.NewPreconditionError(op, "env file does not exist",
				"Create the file or remove it from envFiles", err)
		}
		return nil, oqerrors.NewFileSystemError(op, "failed to read env file", err)
	}
	if bytes.Contains(data, []byte(dollarMark)) {
		return nil, oqerrors.NewArgumentInvalid(op, "env file contains a NUL byte")
	}

	values, err := godotenv.UnmarshalBytes(bytes.ReplaceAll(data, []byte("$"), []byte(dollarMark)))
	if err != nil {
		return nil, oqerrors.NewArgumentInvalid(op, err.Error())
	}
	for k, v := range values {
		values[k] = strings.ReplaceAll(v, dollarMark, "$")
	}
	return values, nil
}

func (m EnvMerger) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
