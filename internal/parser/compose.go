package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"

	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/validate"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/template"
)

const composeProjectName = "orchestriq"

// ParseCompose imports the services of a docker-compose file. Only the
// fields that map onto a container template are kept; services are added
// in name order.
func ParseCompose(ctx context.Context, filePath string) (*template.ContainerTemplate, error) {
	op := "import compose file " + filePath

	data, err := readFile(op, filePath)
	if err != nil {
		return nil, err
	}
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, oqerrors.NewArgumentInvalid(op, err.Error())
	}

	project, err := loader.LoadWithContext(ctx, types.ConfigDetails{
		WorkingDir:  filepath.Dir(absPath),
		ConfigFiles: []types.ConfigFile{{Filename: absPath, Content: data}},
		Environment: types.NewMapping(os.Environ()),
	}, func(opts *loader.Options) {
		opts.SetProjectName(composeProjectName, true)
		opts.ResolvePaths = true
		opts.SkipExtends = true
	})
	if err != nil {
		return nil, oqerrors.NewArgumentInvalid(op, err.Error())
	}

	names := make([]string, 0, len(project.Services))
	for name := range project.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	tmpl := template.New()
	for _, name := range names {
		svc, err := convertService(project.Services[name])
		if err != nil {
			return nil, oqerrors.Wrap(op, err)
		}
		if _, err := tmpl.AddService(name, svc); err != nil {
			return nil, oqerrors.Wrap(op, err)
		}
	}

	if err := validate.Struct(op, tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

func convertService(cs types.ServiceConfig) (template.Service, error) {
	if cs.Image == "" {
		return template.Service{}, oqerrors.NewArgumentInvalid(fmt.Sprintf("service %q", cs.Name),
			"an image is required; build sections are not imported")
	}

	svc := template.Service{
		ContainerName: cs.ContainerName,
		Image:         cs.Image,
		User:          cs.User,
		Command:       cs.Command,
		Entrypoint:    cs.Entrypoint,
	}

	for _, f := range cs.EnvFiles {
		svc.EnvFiles = append(svc.EnvFiles, f.Path)
	}
	for k, v := range cs.Environment {
		if v != nil {
			svc.WithEnv(k, *v)
		}
	}

	for _, v := range cs.Volumes {
		switch {
		case v.Type == types.VolumeTypeBind:
			svc.WithVolume(template.BindVolume(v.Source, v.Target))
		case v.Type == types.VolumeTypeVolume && v.Source != "":
			svc.WithVolume(template.NamedVolume(v.Source, v.Target))
		case v.Type == types.VolumeTypeVolume:
			svc.WithVolume(template.AnonymousVolume(v.Target))
		}
	}

	for _, p := range cs.Ports {
		svc.WithPort(int(p.Target))
	}
	for _, e := range cs.Expose {
		port, err := strconv.Atoi(strings.SplitN(e, "/", 2)[0])
		if err != nil {
			return template.Service{}, oqerrors.NewArgumentInvalid(fmt.Sprintf("service %q", cs.Name),
				fmt.Sprintf("unsupported expose entry %q", e))
		}
		svc.WithPort(port)
	}

	if hc := cs.HealthCheck; hc != nil {
		svc.Healthcheck = convertHealthcheck(hc)
	}
	return svc, nil
}

func convertHealthcheck(hc *types.HealthCheckConfig) template.Healthcheck {
	out := template.Healthcheck{Test: hc.Test}
	if hc.Disable {
		disable := true
		out.Disable = &disable
		if len(out.Test) == 0 {
			out.Test = []string{"NONE"}
		}
	}
	out.Interval = duration(hc.Interval)
	out.Timeout = duration(hc.Timeout)
	out.StartPeriod = duration(hc.StartPeriod)
	if hc.Retries != nil {
		retries := int(*hc.Retries)
		out.Retries = &retries
	}
	return out
}

func duration(d *types.Duration) *time.Duration {
	if d == nil {
		return nil
	}
	v := time.Duration(*d)
	return &v
}
