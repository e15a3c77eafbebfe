// Package model builds systems from requests.
//
// A system is a set of containers described in docker-compose style spec,
// with settings of the app registry and of the environment merged into it.
package model

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/helxplatform/appstore/pkg/api/types"
	kconf "github.com/helxplatform/appstore/pkg/configs/tycho"
	"github.com/helxplatform/appstore/pkg/templates"
	"github.com/labstack/gommon/log"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/api/resource"
)

// ErrInvalidSystem is wrapped by errors caused by malformed requests.
var ErrInvalidSystem = errors.New("invalid system")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSystem, fmt.Sprintf(format, args...))
}

// NewIdentifier returns a random identifier of 32 hex chars.
func NewIdentifier() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

type Parser struct {
	config  *kconf.Config
	environ kconf.Environ
	newID   func() string
	log     *log.Logger
}

type Option func(*Parser) *Parser

// WithIdentifier replaces the identifier generator.
func WithIdentifier(newID func() string) Option {
	return func(p *Parser) *Parser {
		p.newID = newID
		return p
	}
}

func WithLogger(l *log.Logger) Option {
	return func(p *Parser) *Parser {
		p.log = l
		return p
	}
}

func NewParser(config *kconf.Config, environ kconf.Environ, opts ...Option) *Parser {
	p := &Parser{
		config:  config,
		environ: environ,
		newID:   NewIdentifier,
		log:     log.New("model"),
	}
	for _, o := range opts {
		p = o(p)
	}
	return p
}

// Parse builds a System from a start request.
func (p *Parser) Parse(req types.StartRequest) (*System, error) {
	if req.Name == "" {
		return nil, invalid("name is required")
	}
	principal, err := ParsePrincipal(req.Principal)
	if err != nil {
		return nil, invalid("%s", err)
	}
	if req.System == nil {
		return nil, invalid("system spec is required")
	}

	identifier := p.newID()

	env := map[string]string{}
	for k, v := range req.Env {
		env[k] = v
	}
	env["identifier"] = identifier
	env["username"] = principal.Username
	if name, port := mainEntry(req.System); name != "" {
		env["system_name"] = name
		env["system_port"] = port
	}
	context := map[string]any{}
	for k, v := range env {
		context[k] = v
	}

	spec, err := renderSystemSpec(req.System, context)
	if err != nil {
		return nil, invalid("%s", err)
	}

	registryEnv, err := p.registryEnv(env, context)
	if err != nil {
		return nil, invalid("%s", err)
	}

	names := spec.ServiceNames()
	containers := make([]Container, 0, len(names))
	for _, name := range names {
		c, err := p.container(name, spec.Services[name], principal, registryEnv)
		if err != nil {
			return nil, invalid("container %s: %s", name, err)
		}
		containers = append(containers, c)
	}

	volumes, err := ProcessVolumes(containers, p.environ.StdNFSPVC)
	if err != nil {
		return nil, invalid("%s", err)
	}

	services := map[string]Service{}
	serviceNames := make([]string, 0, len(req.Services))
	for name := range req.Services {
		serviceNames = append(serviceNames, name)
	}
	sort.Strings(serviceNames)
	serviceList := make([]Service, 0, len(serviceNames))
	for _, name := range serviceNames {
		svc, err := newService(name, identifier, req.Services[name])
		if err != nil {
			return nil, invalid("%s", err)
		}
		services[name] = svc
		serviceList = append(serviceList, svc)
	}

	security, initSecurity := ResolveSecurity(
		RegistrySecurity(spec.SecurityContext),
		EnvSecurity(p.environ),
		DefaultSecurity(p.config.System().DefaultSecurityContext()),
	)

	// system-wide settings are taken from the last service.
	last := spec.Services[names[len(names)-1]]
	proxyRewrite := ProxyRewrite{}
	if last.ProxyRewrite != nil {
		proxyRewrite = *last.ProxyRewrite
	}
	if last.ProxyRewriteRule != nil {
		proxyRewrite.Enabled = *last.ProxyRewriteRule
	}

	source, err := yaml.Marshal(spec)
	if err != nil {
		return nil, err
	}

	sys := &System{
		Name:                fmt.Sprintf("%s-%s", req.Name, identifier),
		SystemName:          req.Name,
		Identifier:          identifier,
		Containers:          containers,
		Services:            services,
		ServiceList:         serviceList,
		Volumes:             volumes,
		SecurityContext:     security,
		InitSecurityContext: initSecurity,
		Principal:           principal,
		Username:            principal.Username,
		UsernameAllHyphens:  allHyphens(principal.Username),
		Host:                principal.Host,
		ServiceAccount:      req.ServiceAccount,
		ConnString:          last.ConnString,
		ProxyRewrite:        proxyRewrite,
		GiteaIntegration:    last.GiteaIntegration,
		Init:                p.initContainer(volumes),
		GPUResourceName:     p.environ.GPUResourceName,
		Gitea: Gitea{
			Host:        p.environ.GiteaHost,
			User:        p.environ.GiteaUser,
			ServiceName: p.environ.GiteaServiceName,
		},
		IRods: IRods{
			Enabled:     p.environ.IRodsEnabled,
			NFSRodsHost: p.environ.NFSRodsHost,
		},
		DevPhase:     p.environ.DevPhase,
		AmbassadorID: p.environ.AmbassadorID,
		SourceText:   string(source),
	}
	p.log.Debugf("parsed system %s:\n%s", sys.Name, sys.SourceText)
	return sys, nil
}

// registryEnv makes env settings of the app registry into container env.
func (p *Parser) registryEnv(env map[string]string, context map[string]any) ([]EnvVar, error) {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ret := make([]EnvVar, 0, len(keys))
	for _, k := range keys {
		v := env[k]
		if strings.Contains(v, "STDNFS_PVC") {
			ret = append(ret, EnvVar{Name: k, Value: p.environ.StdNFSPVC})
			continue
		}
		kv, err := templates.RenderString(k+"="+v, context)
		if err != nil {
			return nil, fmt.Errorf("env %s can not be rendered: %w", k, err)
		}
		ret = append(ret, envVar(kv))
	}
	return ret, nil
}

func (p *Parser) container(name string, s *ComposeService, principal Principal, registryEnv []EnvVar) (Container, error) {
	if err := checkImage(s.Image); err != nil {
		return Container{}, err
	}

	command, err := stringList(s.Entrypoint)
	if err != nil {
		return Container{}, fmt.Errorf("entrypoint: %w", err)
	}

	ports := []Port{}
	for _, v := range s.Ports {
		port, err := portFrom(v)
		if err != nil {
			return Container{}, fmt.Errorf("ports: %w", err)
		}
		ports = append(ports, port)
	}
	expose := []Port{}
	for _, v := range s.Expose {
		port, err := portFrom(v)
		if err != nil {
			return Container{}, fmt.Errorf("expose: %w", err)
		}
		expose = append(expose, port)
	}

	env, err := specEnv(s)
	if err != nil {
		return Container{}, err
	}
	env = append(env, registryEnv...)

	limits, err := limitsFrom(s.Deploy.Resources.Limits)
	if err != nil {
		return Container{}, fmt.Errorf("limits: %w", err)
	}
	requests, err := limitsFrom(s.Deploy.Resources.Reservations)
	if err != nil {
		return Container{}, fmt.Errorf("reservations: %w", err)
	}

	liveness, err := probeFrom(s.Ext.Kube.LivenessProbe)
	if err != nil {
		return Container{}, fmt.Errorf("livenessProbe: %w", err)
	}
	readiness, err := probeFrom(s.Ext.Kube.ReadinessProbe)
	if err != nil {
		return Container{}, fmt.Errorf("readinessProbe: %w", err)
	}

	deps, err := dependsOn(s.DependsOn)
	if err != nil {
		return Container{}, err
	}

	volumes := append([]string{}, s.Volumes...)
	volumes = append(volumes, p.defaultVolumes(principal)...)

	return Container{
		Name:     name,
		Image:    s.Image,
		Command:  command,
		Env:      env,
		Limits:   limits,
		Requests: requests,
		Resources: map[string]map[string]string{
			"limits":   limits.ResourceList(p.environ.GPUResourceName),
			"requests": requests.ResourceList(p.environ.GPUResourceName),
		},
		Ports:          ports,
		Expose:         expose,
		DependsOn:      deps,
		Volumes:        volumes,
		LivenessProbe:  liveness,
		ReadinessProbe: readiness,
	}, nil
}

// defaultVolumes returns configured volumes applied to every container.
//
// When CREATE_HOME_DIRS is true, only volumes on shared_dir or subpath_dir are taken.
// Otherwise, volumes on username or shared_dir are left.
func (p *Parser) defaultVolumes(principal Principal) []string {
	if p.environ.IsTest() {
		return nil
	}

	subpath := p.environ.SubpathDir
	if subpath == "" {
		subpath = principal.Username
	}
	replacer := []struct{ placeholder, value string }{
		{"stdnfs_pvc", p.environ.StdNFSPVC},
		{"username", principal.Username},
		{"parent_dir", p.environ.ParentDir},
		{"subpath_dir", subpath},
		{"shared_dir", p.environ.SharedDir},
	}

	ret := []string{}
	for _, vol := range p.config.System().Volumes() {
		parts := strings.Split(vol, ":")
		claim, mount := "", ""
		if 1 < len(parts) {
			claim = parts[1]
		}
		if 2 < len(parts) {
			mount = parts[2]
		}

		if p.environ.CreateHomeDirs {
			if !strings.Contains(claim, "shared_dir") && !strings.Contains(mount, "subpath_dir") {
				continue
			}
		} else if strings.Contains(vol, "username") || strings.Contains(claim, "shared_dir") {
			continue
		}

		for _, r := range replacer {
			vol = strings.ReplaceAll(vol, r.placeholder, r.value)
		}
		ret = append(ret, vol)
	}
	return ret
}

func (p *Parser) initContainer(volumes []Volume) InitContainer {
	res := p.config.System().InitResources()
	ic := InitContainer{
		Enabled: p.environ.EnableInitContainer,
		Image:   p.environ.InitImageRepository + ":" + p.environ.InitImageTag,
		CPUs:    res.CPUs(),
		Memory:  res.Memory(),
		Dirs:    []string{},
	}
	if p.environ.InitCPUs != "" {
		ic.CPUs = p.environ.InitCPUs
	}
	if p.environ.InitMemory != "" {
		ic.Memory = p.environ.InitMemory
	}

	seen := map[string]struct{}{}
	for _, v := range volumes {
		if v.Subpath == "" {
			continue
		}
		dir := path.Join(v.VolumeName, v.Subpath)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		ic.Dirs = append(ic.Dirs, dir)
	}
	return ic
}

// ParseModify builds a ModifySystem from a modify request.
//
// Resources may be given in `resources` or at the top level.
func (p *Parser) ParseModify(req types.ModifyRequest) (*ModifySystem, error) {
	if req.GUID == "" {
		return nil, invalid("tycho-guid is required")
	}

	cpu, memory := req.CPU, req.Memory
	if req.Resources != nil {
		if req.Resources.CPU != "" {
			cpu = req.Resources.CPU
		}
		if req.Resources.Memory != "" {
			memory = req.Resources.Memory
		}
	}

	resources := map[string]string{}
	for k, v := range map[string]string{"cpu": cpu, "memory": memory} {
		if v == "" {
			continue
		}
		if _, err := resource.ParseQuantity(v); err != nil {
			return nil, invalid("%s %s is not a quantity", k, v)
		}
		resources[k] = v
	}

	labels := map[string]string{}
	for k, v := range req.Labels {
		labels[k] = v
	}

	return &ModifySystem{
		GUID:      req.GUID,
		Labels:    labels,
		Resources: resources,
		Patch:     0 < len(resources) || 0 < len(labels),
	}, nil
}
