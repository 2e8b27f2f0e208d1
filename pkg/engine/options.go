package engine

import (
	"github.com/docker/docker/api/types/registry"
)

const (
	DefaultTag            = "latest"
	DefaultDockerfileName = "Dockerfile"
)

// BuildImageOptions describes an image build. Optional flags are pointers so
// that "not provided" is distinguishable from false.
type BuildImageOptions struct {
	Name                    string `validate:"required"`
	Tag                     string
	Context                 string `validate:"required"`
	DockerfileName          string `validate:"omitempty,excludesall=/\\"`
	DockerfilePath          string
	Auth                    *RemoteAuth
	NoCache                 *bool
	RemoveIntermediate      *bool
	ForceRemoveIntermediate *bool
	PullBaseImages          *bool
	NetworkMode             string
	Platform                string
	Labels                  map[string]string `validate:"dive,keys,required,endkeys"`
	BuildArgs               map[string]string `validate:"dive,keys,required,endkeys"`
	Outputs                 []BuildOutput     `validate:"dive"`
	Verbose                 *bool
}

// RemoteAuth authenticates the daemon's fetch of a remote build context:
// either Username/Password (Basic) or Token (Bearer).
type RemoteAuth struct {
	Username string `validate:"required_with=Password,excluded_with=Token"`
	Password string `validate:"required_with=Username"`
	Token    string `validate:"required_without=Username"`
}

// BuildOutput is one key=value pair of the build "outputs" parameter.
type BuildOutput struct {
	Key   string `validate:"required"`
	Value string
}

type PullImageOptions struct {
	Image    string `validate:"required"`
	Tag      string
	Platform string
	Auth     *registry.AuthConfig
	Verbose  bool
}

type PushImageOptions struct {
	Name    string `validate:"required"`
	Tag     string
	Auth    *registry.AuthConfig
	Verbose bool
}

type TagImageOptions struct {
	Source string `validate:"required"`
	Repo   string `validate:"required"`
	Tag    string
	Force  bool
}

type RemoveImageOptions struct {
	Name    string `validate:"required"`
	Force   bool
	NoPrune bool
}

// IsVerbose reports whether progress output was requested.
func (o BuildImageOptions) IsVerbose() bool {
	return o.Verbose != nil && *o.Verbose
}

// Bool returns a pointer to b, for the optional flags above.
func Bool(b bool) *bool {
	return &b
}
