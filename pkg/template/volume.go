package template

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// VolumeKind identifies which of the three volume shapes a Volume has.
type VolumeKind int

const (
	VolumeAnonymous VolumeKind = iota
	VolumeNamed
	VolumeBind
)

func (k VolumeKind) String() string {
	switch k {
	case VolumeNamed:
		return "named"
	case VolumeBind:
		return "bind"
	default:
		return "anonymous"
	}
}

// Volume is an anonymous volume (only ContainerPath), a named volume (Name)
// or a bind mount (HostPath). Name and HostPath are mutually exclusive.
type Volume struct {
	Name          string `yaml:"name"`
	HostPath      string `yaml:"hostPath"`
	ContainerPath string `yaml:"containerPath" validate:"required"`
}

func AnonymousVolume(containerPath string) Volume {
	return Volume{ContainerPath: containerPath}
}

func NamedVolume(name, containerPath string) Volume {
	return Volume{Name: name, ContainerPath: containerPath}
}

func BindVolume(hostPath, containerPath string) Volume {
	return Volume{HostPath: hostPath, ContainerPath: containerPath}
}

// Kind reports the volume's shape. A volume with both Name and HostPath set
// is rejected by validation; Kind reports it as named.
func (v Volume) Kind() VolumeKind {
	switch {
	case v.Name != "":
		return VolumeNamed
	case v.HostPath != "":
		return VolumeBind
	default:
		return VolumeAnonymous
	}
}

// UnmarshalYAML accepts the structured form or the short form
// "[source:]containerPath". A source beginning with "/", "." or "~" is a
// host path; anything else names a volume.
func (v *Volume) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		type plain Volume
		var p plain
		if err := node.Decode(&p); err != nil {
			return err
		}
		*v = Volume(p)
		return nil
	}

	spec := strings.TrimSpace(node.Value)
	if spec == "" {
		return fmt.Errorf("line %d: empty volume definition", node.Line)
	}

	source, target, found := strings.Cut(spec, ":")
	if !found {
		*v = AnonymousVolume(source)
		return nil
	}
	// Drop a trailing mode such as ":ro"; the Engine bind string is rebuilt
	// from source and target only.
	if i := strings.Index(target, ":"); i >= 0 {
		target = target[:i]
	}
	if strings.HasPrefix(source, "/") || strings.HasPrefix(source, ".") || strings.HasPrefix(source, "~") {
		*v = BindVolume(source, target)
	} else {
		*v = NamedVolume(source, target)
	}
	return nil
}
