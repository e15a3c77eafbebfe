package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
)

type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// envVar reads "KEY=VALUE". Only the first "=" delimits.
func envVar(kv string) EnvVar {
	k, v, _ := strings.Cut(kv, "=")
	return EnvVar{Name: k, Value: v}
}

type Port struct {
	ContainerPort int32 `json:"containerPort"`
}

// portFrom reads compose style port, like `8080`, `"8080:80"` or `"80/tcp"`.
//
// When both of host and container sides are given, the container side is taken.
func portFrom(v any) (Port, error) {
	s, err := scalar(v)
	if err != nil {
		return Port{}, err
	}
	if _, c, ok := strings.Cut(s, ":"); ok {
		s = c
	}
	s, _, _ = strings.Cut(s, "/")
	p, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return Port{}, fmt.Errorf("bad port %v: %w", v, err)
	}
	return Port{ContainerPort: int32(p)}, nil
}

// Container is an invocation of an image in a system.
type Container struct {
	Name  string
	Image string

	// entrypoint. Empty means "as the image says".
	Command []string

	Env []EnvVar

	Limits   Limits
	Requests Limits

	// Resources is Limits and Requests as kubernetes resource names,
	// in the shape {"limits": {...}, "requests": {...}}.
	Resources map[string]map[string]string

	Ports  []Port
	Expose []Port

	DependsOn []string

	// volume declarations, like "pvc://stdnfs/home/user:/home/user".
	Volumes []string

	// nil when not specified.
	LivenessProbe  *Probe
	ReadinessProbe *Probe
}

// checkImage verifies that image is a well formed image reference.
func checkImage(image string) error {
	if image == "" {
		return fmt.Errorf("image is required")
	}
	if _, err := name.ParseReference(image, name.WeakValidation); err != nil {
		return fmt.Errorf("bad image reference %s: %w", image, err)
	}
	return nil
}

func (c Container) clone() Container {
	ret := c
	ret.Command = append([]string(nil), c.Command...)
	ret.Env = append([]EnvVar(nil), c.Env...)
	ret.Ports = append([]Port(nil), c.Ports...)
	ret.Expose = append([]Port(nil), c.Expose...)
	ret.DependsOn = append([]string(nil), c.DependsOn...)
	ret.Volumes = append([]string(nil), c.Volumes...)
	ret.Resources = map[string]map[string]string{}
	for k, v := range c.Resources {
		m := map[string]string{}
		for rk, rv := range v {
			m[rk] = rv
		}
		ret.Resources[k] = m
	}
	return ret
}

// FirstPort returns the first declared container port.
func (c Container) FirstPort() (int32, bool) {
	if len(c.Ports) == 0 {
		return 0, false
	}
	return c.Ports[0].ContainerPort, true
}
