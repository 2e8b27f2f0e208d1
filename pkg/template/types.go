// Package template holds the declarative description of the containers a
// caller wants created. A ContainerTemplate is built up with the builder
// methods (or loaded from a file by internal/parser) and consumed once by
// the container-create compiler.
package template

import (
	"time"

	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
)

// ContainerTemplate is the root object describing one or more services.
type ContainerTemplate struct {
	EnvFiles    []string          `yaml:"envFiles" validate:"dive,required"`
	Environment map[string]string `yaml:"environment" validate:"dive,keys,required,endkeys"`
	Services    []*Service        `yaml:"-" validate:"dive,required"`
}

// Service is one named container specification within a template.
type Service struct {
	Name          string            `yaml:"-" validate:"required"`
	ContainerName string            `yaml:"containerName"`
	Image         string            `yaml:"image"`
	User          string            `yaml:"user"`
	Command       []string          `yaml:"command"`
	Entrypoint    []string          `yaml:"entrypoint"`
	EnvFiles      []string          `yaml:"envFiles" validate:"dive,required"`
	Environment   map[string]string `yaml:"environment" validate:"dive,keys,required,endkeys"`
	Volumes       []Volume          `yaml:"volumes" validate:"dive"`
	Ports         []int             `yaml:"ports" validate:"dive,min=1,max=65535"`
	Healthcheck   Healthcheck       `yaml:"healthcheck"`
}

// Healthcheck mirrors the Engine's healthcheck block. Nil pointers mean
// "not set" and are distinct from zero values.
type Healthcheck struct {
	Test        []string       `yaml:"test"`
	Interval    *time.Duration `yaml:"interval"`
	Timeout     *time.Duration `yaml:"timeout"`
	StartPeriod *time.Duration `yaml:"startPeriod"`
	Retries     *int           `yaml:"retries" validate:"omitempty,min=0"`
	Disable     *bool          `yaml:"disable"`
}

// New returns an empty template.
func New() *ContainerTemplate {
	return &ContainerTemplate{
		Environment: map[string]string{},
	}
}

// AddEnvFile registers a template-wide env file. Only absolute paths are
// read at compile time.
func (t *ContainerTemplate) AddEnvFile(path string) *ContainerTemplate {
	t.EnvFiles = append(t.EnvFiles, path)
	return t
}

// SetEnv sets a template-wide environment variable.
func (t *ContainerTemplate) SetEnv(key, value string) *ContainerTemplate {
	if t.Environment == nil {
		t.Environment = map[string]string{}
	}
	t.Environment[key] = value
	return t
}

// AddService appends svc under name, keeping declaration order.
func (t *ContainerTemplate) AddService(name string, svc Service) (*Service, error) {
	if name == "" {
		return nil, oqerrors.NewArgumentInvalid("add service", "service name must not be empty")
	}
	if _, exists := t.Service(name); exists {
		return nil, oqerrors.NewArgumentConflict("add service", "service \""+name+"\" is already defined", "use a unique name per service")
	}
	svc.Name = name
	s := &svc
	t.Services = append(t.Services, s)
	return s, nil
}

// Service looks up a service by its template key.
func (t *ContainerTemplate) Service(name string) (*Service, bool) {
	for _, s := range t.Services {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

func (t *ContainerTemplate) Len() int {
	return len(t.Services)
}

// EffectiveContainerName is the explicit container name, or the service key.
func (s *Service) EffectiveContainerName() string {
	if s.ContainerName != "" {
		return s.ContainerName
	}
	return s.Name
}

func (s *Service) WithEnv(key, value string) *Service {
	if s.Environment == nil {
		s.Environment = map[string]string{}
	}
	s.Environment[key] = value
	return s
}

func (s *Service) WithEnvFile(path string) *Service {
	s.EnvFiles = append(s.EnvFiles, path)
	return s
}

func (s *Service) WithVolume(v Volume) *Service {
	s.Volumes = append(s.Volumes, v)
	return s
}

func (s *Service) WithPort(port int) *Service {
	s.Ports = append(s.Ports, port)
	return s
}

func (s *Service) WithHealthcheck(h Healthcheck) *Service {
	s.Healthcheck = h
	return s
}
