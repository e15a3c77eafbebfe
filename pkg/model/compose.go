package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/helxplatform/appstore/pkg/templates"
	"gopkg.in/yaml.v3"
)

// ComposeSpec is a docker-compose shaped system spec.
type ComposeSpec struct {
	Services map[string]*ComposeService `yaml:"services"`

	// security context from the app registry.
	SecurityContext map[string]any `yaml:"security_context,omitempty"`
}

// ComposeService is an entry of `services` of ComposeSpec.
//
// Fields which may be in several shapes are kept as they are decoded.
type ComposeService struct {
	Image       string   `yaml:"image"`
	Entrypoint  any      `yaml:"entrypoint,omitempty"`
	Ports       []any    `yaml:"ports,omitempty"`
	Expose      []any    `yaml:"expose,omitempty"`
	Env         any      `yaml:"env,omitempty"`
	Environment any      `yaml:"environment,omitempty"`
	Volumes     []string `yaml:"volumes,omitempty"`
	DependsOn   any      `yaml:"depends_on,omitempty"`

	Deploy struct {
		Resources struct {
			Limits       any `yaml:"limits,omitempty"`
			Reservations any `yaml:"reservations,omitempty"`
		} `yaml:"resources,omitempty"`
	} `yaml:"deploy,omitempty"`

	Ext struct {
		Kube struct {
			LivenessProbe  any `yaml:"livenessProbe,omitempty"`
			ReadinessProbe any `yaml:"readinessProbe,omitempty"`
		} `yaml:"kube,omitempty"`
	} `yaml:"ext,omitempty"`

	ConnString       string        `yaml:"conn_string,omitempty"`
	ProxyRewrite     *ProxyRewrite `yaml:"proxy_rewrite,omitempty"`
	ProxyRewriteRule *bool         `yaml:"proxy_rewrite_rule,omitempty"`
	GiteaIntegration bool          `yaml:"gitea_integration,omitempty"`
}

// ServiceNames returns names of services in order.
func (c *ComposeSpec) ServiceNames() []string {
	names := make([]string, 0, len(c.Services))
	for n := range c.Services {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// renderSystemSpec substitutes env into a raw system spec.
//
// The spec is written as YAML, rendered as a template, and read again.
func renderSystemSpec(raw map[string]any, env map[string]any) (*ComposeSpec, error) {
	text, err := yaml.Marshal(raw)
	if err != nil {
		return nil, err
	}
	rendered, err := templates.RenderString(string(text), env)
	if err != nil {
		return nil, fmt.Errorf("system spec can not be rendered: %w", err)
	}

	spec := &ComposeSpec{}
	if err := yaml.Unmarshal([]byte(rendered), spec); err != nil {
		return nil, fmt.Errorf("rendered system spec is broken: %w", err)
	}
	if len(spec.Services) == 0 {
		return nil, fmt.Errorf("system has no services")
	}
	for name, svc := range spec.Services {
		if svc == nil {
			return nil, fmt.Errorf("service %s is null", name)
		}
	}
	return spec, nil
}

// mainEntry finds the name and the port of the system from a raw system spec.
//
// The last service (in name order) is the system. Its port is the container
// side of its first port, or 8000 if it has no ports.
func mainEntry(raw map[string]any) (name string, port string) {
	port = "8000"
	services, _ := raw["services"].(map[string]any)
	names := make([]string, 0, len(services))
	for n := range services {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		name = n
		svc, _ := services[n].(map[string]any)
		ports, _ := svc["ports"].([]any)
		if len(ports) == 0 {
			continue
		}
		p, err := scalar(ports[0])
		if err != nil {
			continue
		}
		if _, c, ok := strings.Cut(p, ":"); ok {
			p = c
		}
		port = p
	}
	return name, port
}

// specEnv reads `env` (or `environment`) of a service.
// It may be a list of "KEY=VALUE" or a mapping.
func specEnv(s *ComposeService) ([]EnvVar, error) {
	v := s.Env
	if isEmpty(v) {
		v = s.Environment
	}
	switch e := v.(type) {
	case nil:
		return []EnvVar{}, nil
	case []any:
		ret := make([]EnvVar, 0, len(e))
		for _, item := range e {
			kv, err := scalar(item)
			if err != nil {
				return nil, fmt.Errorf("env: %w", err)
			}
			ret = append(ret, envVar(kv))
		}
		return ret, nil
	case map[string]any:
		keys := make([]string, 0, len(e))
		for k := range e {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ret := make([]EnvVar, 0, len(e))
		for _, k := range keys {
			val, err := scalar(e[k])
			if err != nil {
				return nil, fmt.Errorf("env %s: %w", k, err)
			}
			ret = append(ret, EnvVar{Name: k, Value: val})
		}
		return ret, nil
	default:
		return nil, fmt.Errorf("env should be a list or a mapping: %v", v)
	}
}

func isEmpty(v any) bool {
	switch e := v.(type) {
	case nil:
		return true
	case []any:
		return len(e) == 0
	case map[string]any:
		return len(e) == 0
	}
	return false
}

// dependsOn reads `depends_on`, a list of names or a mapping keyed by names.
func dependsOn(v any) ([]string, error) {
	switch d := v.(type) {
	case map[string]any:
		names := make([]string, 0, len(d))
		for n := range d {
			names = append(names, n)
		}
		sort.Strings(names)
		return names, nil
	default:
		l, err := stringList(v)
		if err != nil {
			return nil, fmt.Errorf("depends_on: %w", err)
		}
		if l == nil {
			l = []string{}
		}
		return l, nil
	}
}
