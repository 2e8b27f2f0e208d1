package compiler

import (
	"github.com/docker/docker/api/types/container"

	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/template"
)

// CompileHealthcheck converts h to the Engine shape. It returns nil when the
// test command is empty, or when no other field is set, so that the image's
// own healthcheck is left untouched.
func CompileHealthcheck(h template.Healthcheck) *container.HealthConfig {
	if len(h.Test) == 0 {
		return nil
	}
	if h.Interval == nil && h.Timeout == nil && h.StartPeriod == nil && h.Retries == nil && h.Disable == nil {
		return nil
	}

	hc := &container.HealthConfig{
		Test: append([]string(nil), h.Test...),
	}
	if h.Interval != nil {
		hc.Interval = *h.Interval
	}
	if h.Timeout != nil {
		hc.Timeout = *h.Timeout
	}
	if h.StartPeriod != nil {
		hc.StartPeriod = *h.StartPeriod
	}
	if h.Retries != nil {
		hc.Retries = *h.Retries
	}
	if h.Disable != nil && *h.Disable {
		hc.Test = []string{"NONE"}
	}
	return hc
}
