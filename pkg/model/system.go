package model

import (
	"maps"
	"slices"
	"strings"
)

type ProxyRewrite struct {
	Target  *string `json:"target" yaml:"target"`
	Enabled bool    `json:"enabled" yaml:"enabled"`
}

// InitContainer is settings of the container preparing volumes.
type InitContainer struct {
	Enabled bool
	Image   string
	CPUs    string
	Memory  string

	// directories to be created, relative to /tycho-init.
	Dirs []string
}

type Gitea struct {
	Host        string
	User        string
	ServiceName string
}

type IRods struct {
	Enabled     bool
	NFSRodsHost string
}

// System is a distributed system of interacting containers.
//
// Systems are built by Parser and should be treated as read-only.
// Backplanes use Derive to fill settings discovered at start.
type System struct {
	// {SystemName}-{Identifier}
	Name string

	// name of the app
	SystemName string

	// 32 hex chars, unique per system.
	Identifier string

	Containers []Container

	// services by container name
	Services map[string]Service

	// Services, sorted by container name.
	ServiceList []Service

	Volumes []Volume

	SecurityContext     SecurityContext
	InitSecurityContext SecurityContext

	Principal          Principal
	Username           string
	UsernameAllHyphens string
	Host               string
	ServiceAccount     string

	ConnString       string
	ProxyRewrite     ProxyRewrite
	GiteaIntegration bool

	Init            InitContainer
	GPUResourceName string
	Gitea           Gitea
	IRods           IRods
	DevPhase        string
	AmbassadorID    string

	// rendered system spec, as YAML.
	SourceText string

	// set by Derive.

	// true if the cluster routes requests through ambassador.
	Ambassador bool

	// port of the container named as the system. 0 if unknown.
	SystemPort int32
}

// RequiresNetworkPolicy reports whether some of services restricts its clients.
func (s *System) RequiresNetworkPolicy() bool {
	for _, svc := range s.Services {
		if len(svc.Clients) > 0 {
			return true
		}
	}
	return false
}

func (s *System) clone() *System {
	ret := *s
	ret.Containers = make([]Container, 0, len(s.Containers))
	for _, c := range s.Containers {
		ret.Containers = append(ret.Containers, c.clone())
	}
	ret.Services = maps.Clone(s.Services)
	ret.ServiceList = slices.Clone(s.ServiceList)
	ret.Volumes = slices.Clone(s.Volumes)
	ret.Init.Dirs = slices.Clone(s.Init.Dirs)
	return &ret
}

type DeriveOption func(*System)

// WithAmbassador sets whether the cluster has ambassador.
func WithAmbassador(present bool) DeriveOption {
	return func(s *System) {
		s.Ambassador = present
	}
}

// WithSystemPort sets the port of the main container.
func WithSystemPort(port int32) DeriveOption {
	return func(s *System) {
		s.SystemPort = port
	}
}

// WithExtraEnv appends env to every container.
func WithExtraEnv(env []EnvVar) DeriveOption {
	return func(s *System) {
		for i := range s.Containers {
			s.Containers[i].Env = append(s.Containers[i].Env, env...)
		}
	}
}

// WithoutVolumes drops mounts of claims, and directories on them.
func WithoutVolumes(claims ...string) DeriveOption {
	return func(s *System) {
		vols := []Volume{}
		for _, v := range s.Volumes {
			if !slices.Contains(claims, v.VolumeName) {
				vols = append(vols, v)
			}
		}
		s.Volumes = vols

		dirs := []string{}
		for _, d := range s.Init.Dirs {
			claim, _, _ := strings.Cut(d, "/")
			if !slices.Contains(claims, claim) {
				dirs = append(dirs, d)
			}
		}
		s.Init.Dirs = dirs
	}
}

// Derive returns a modified copy of s. s itself is left as it is.
func (s *System) Derive(opts ...DeriveOption) *System {
	ret := s.clone()
	for _, o := range opts {
		o(ret)
	}
	return ret
}

// Container finds a container by name.
func (s *System) Container(name string) (Container, bool) {
	for _, c := range s.Containers {
		if c.Name == name {
			return c, true
		}
	}
	return Container{}, false
}

// ModifySystem is a change request to running systems.
type ModifySystem struct {
	// identifier of the system
	GUID string

	// labels to be put on deployments
	Labels map[string]string

	// "cpu" and/or "memory", for every container
	Resources map[string]string

	// true if there is something to be changed.
	Patch bool
}
