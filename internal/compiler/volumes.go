package compiler

import (
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/template"
)

// CompileVolumes splits volumes into the Engine's anonymous volume set and
// its bind list. Named volumes precede bind mounts in the bind list. Either
// result is nil when it would be empty.
func CompileVolumes(volumes []template.Volume) (map[string]struct{}, []string) {
	var anonymous map[string]struct{}
	var named, binds []string

	for _, v := range volumes {
		switch v.Kind() {
		case template.VolumeAnonymous:
			if anonymous == nil {
				anonymous = map[string]struct{}{}
			}
			anonymous[v.ContainerPath] = struct{}{}
		case template.VolumeNamed:
			named = append(named, v.Name+":"+v.ContainerPath)
		case template.VolumeBind:
			binds = append(binds, v.HostPath+":"+v.ContainerPath)
		}
	}

	if len(named)+len(binds) == 0 {
		return anonymous, nil
	}
	return anonymous, append(named, binds...)
}
