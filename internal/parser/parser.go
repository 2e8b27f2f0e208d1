// Package parser loads container templates from disk: the native template
// format, or a docker-compose file.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/validate"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/template"
)

// templateFile is the on-disk layout. Services stay a raw node so that
// their declaration order is kept.
type templateFile struct {
	EnvFiles    []string          `yaml:"envFiles"`
	Environment map[string]string `yaml:"environment"`
	Services    yaml.Node         `yaml:"services"`
}

// ParseTemplate reads and validates a template file. Relative env file and
// bind mount paths are resolved against the file's directory. Files ending
// in .json or .jsonc may carry comments and trailing commas.
func ParseTemplate(filePath string) (*template.ContainerTemplate, error) {
	op := "parse template " + filePath

	data, err := readFile(op, filePath)
	if err != nil {
		return nil, err
	}
	if isJSON(filePath) {
		data = jsonc.ToJSON(data)
	}

	var raw templateFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil {
		return nil, oqerrors.NewArgumentInvalid(op, "malformed YAML: "+err.Error())
	}

	if raw.Services.Kind != yaml.MappingNode || len(raw.Services.Content) == 0 {
		return nil, oqerrors.NewArgumentInvalid(op, "'services' must be a non-empty mapping of service name to definition")
	}

	baseDir := filepath.Dir(filePath)
	tmpl := template.New()
	for _, p := range raw.EnvFiles {
		tmpl.AddEnvFile(resolvePath(baseDir, p))
	}
	for k, v := range raw.Environment {
		tmpl.SetEnv(k, v)
	}

	// A mapping node's content alternates key and value nodes.
	for i := 0; i+1 < len(raw.Services.Content); i += 2 {
		keyNode, valueNode := raw.Services.Content[i], raw.Services.Content[i+1]

		var svc template.Service
		if err := valueNode.Decode(&svc); err != nil {
			return nil, oqerrors.NewArgumentInvalid(op, fmt.Sprintf("service %q: %v", keyNode.Value, err))
		}
		for j, p := range svc.EnvFiles {
			svc.EnvFiles[j] = resolvePath(baseDir, p)
		}
		for j, v := range svc.Volumes {
			if v.Kind() == template.VolumeBind {
				svc.Volumes[j].HostPath = resolvePath(baseDir, v.HostPath)
			}
		}

		if _, err := tmpl.AddService(keyNode.Value, svc); err != nil {
			return nil, oqerrors.Wrap(op, err)
		}
	}

	if err := validate.Struct(op, tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

func readFile(op, filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, oqerrors.NewPreconditionError(op, "file not found", "Check the file path", err)
		}
		return nil, oqerrors.NewFileSystemError(op, "failed to read file", err)
	}
	return data, nil
}

// resolvePath makes p absolute relative to baseDir, expanding a leading ~.
func resolvePath(baseDir, p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	abs, err := filepath.Abs(filepath.Join(baseDir, p))
	if err != nil {
		return p
	}
	return abs
}

func isJSON(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return true
	}
	return false
}
