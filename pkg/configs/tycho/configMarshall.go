package tycho

import (
	"fmt"
	"slices"
	"time"

	"k8s.io/apimachinery/pkg/api/resource"
)

const (
	BackplaneKubernetes    = "kubernetes"
	BackplaneDockerCompose = "docker-compose"
)

// backplanes which can be chosen as `tycho.backplane`.
var SupportedBackplanes = []string{BackplaneKubernetes, BackplaneDockerCompose}

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
//
// All types named `pkg/configs/tycho.XxxMarshall` are `Marshalled[*Xxx]` .
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

// Root of the configuration file.
//
// This type is marshalling value and mutable.
// Use TrySeal to get the immutable `*Config`.
type ConfigMarshall struct {
	Tycho *TychoConfigMarshall `yaml:"tycho"`
}

var _ Marshalled[*Config] = &ConfigMarshall{}

func (c *ConfigMarshall) trySeal(path string) *Config {
	return nonnil(c, path).Tycho.trySeal(path + ".tycho")
}

type TychoConfigMarshall struct {
	Backplane     string                   `yaml:"backplane"`
	StrictVolumes bool                     `yaml:"strictVolumes"`
	Templates     *TemplatesConfigMarshall `yaml:"templates,omitempty"`
	Compute       *ComputeConfigMarshall   `yaml:"compute"`
}

func (t *TychoConfigMarshall) trySeal(path string) *Config {
	t = nonnil(t, path)
	backplane := required(t.Backplane, path+".backplane")
	if !slices.Contains(SupportedBackplanes, backplane) {
		panic(fmt.Errorf(
			"%s.backplane should be one of %v, but %s", path, SupportedBackplanes, backplane,
		))
	}

	templates := t.Templates
	if templates == nil {
		templates = &TemplatesConfigMarshall{}
	}

	compute := nonnil(t.Compute, path+".compute")
	return &Config{
		backplane:     backplane,
		strictVolumes: t.StrictVolumes,
		templatePaths: slices.Clone(templates.Paths),
		kube:          compute.Platform.kube().trySeal(path + ".compute.platform.kube"),
		docker:        compute.Platform.docker().trySeal(path + ".compute.platform.docker"),
		system:        nonnil(compute.System, path+".compute.system").trySeal(path + ".compute.system"),
	}
}

type TemplatesConfigMarshall struct {
	Paths []string `yaml:"paths"`
}

type ComputeConfigMarshall struct {
	Platform *PlatformConfigMarshall `yaml:"platform,omitempty"`
	System   *SystemConfigMarshall   `yaml:"system"`
}

type PlatformConfigMarshall struct {
	Kube   *KubeConfigMarshall   `yaml:"kube,omitempty"`
	Docker *DockerConfigMarshall `yaml:"docker,omitempty"`
}

func (p *PlatformConfigMarshall) kube() *KubeConfigMarshall {
	if p == nil || p.Kube == nil {
		return &KubeConfigMarshall{}
	}
	return p.Kube
}

func (p *PlatformConfigMarshall) docker() *DockerConfigMarshall {
	if p == nil || p.Docker == nil {
		return &DockerConfigMarshall{}
	}
	return p.Docker
}

type KubeConfigMarshall struct {
	Namespace        string `yaml:"namespace,omitempty"`
	IP               string `yaml:"ip,omitempty"`
	Ambassador       string `yaml:"ambassador,omitempty"`
	LoadBalancerWait string `yaml:"loadBalancerWait,omitempty"`
}

func (k *KubeConfigMarshall) trySeal(path string) *KubeConfig {
	ambassador := k.Ambassador
	if ambassador == "" {
		ambassador = "ambassador"
	}
	return &KubeConfig{
		namespace:        k.Namespace,
		ip:               k.IP,
		ambassador:       ambassador,
		loadBalancerWait: duration(k.LoadBalancerWait, 30*time.Second, path+".loadBalancerWait"),
	}
}

type DockerConfigMarshall struct {
	AppRoot        string   `yaml:"appRoot,omitempty"`
	Command        []string `yaml:"command,omitempty"`
	ConfiguredWait string   `yaml:"configuredWait,omitempty"`
}

func (d *DockerConfigMarshall) trySeal(path string) *DockerConfig {
	appRoot := d.AppRoot
	if appRoot == "" {
		appRoot = "apps"
	}
	command := slices.Clone(d.Command)
	if len(command) == 0 {
		command = []string{"docker", "compose"}
	}
	return &DockerConfig{
		appRoot:        appRoot,
		command:        command,
		configuredWait: duration(d.ConfiguredWait, 5*time.Second, path+".configuredWait"),
	}
}

type SystemConfigMarshall struct {
	Defaults *SystemDefaultsConfigMarshall `yaml:"defaults"`
	Volumes  []string                      `yaml:"volumes,omitempty"`
}

func (s *SystemConfigMarshall) trySeal(path string) *SystemConfig {
	defaults := nonnil(s.Defaults, path+".defaults")
	sc := nonnil(defaults.SecurityContext, path+".defaults.securityContext")

	initResources := &ResourcesConfigMarshall{}
	if defaults.Services != nil && defaults.Services.Init != nil && defaults.Services.Init.Resources != nil {
		initResources = defaults.Services.Init.Resources
	}

	return &SystemConfig{
		securityContext: sc.trySeal(path + ".defaults.securityContext"),
		initResources:   initResources.trySeal(path + ".defaults.services.init.resources"),
		volumes:         slices.Clone(s.Volumes),
	}
}

type SystemDefaultsConfigMarshall struct {
	SecurityContext *SecurityContextConfigMarshall  `yaml:"securityContext"`
	Services        *ServicesDefaultsConfigMarshall `yaml:"services,omitempty"`
}

type SecurityContextConfigMarshall struct {
	UID string `yaml:"uid"`
	GID string `yaml:"gid"`
}

func (s *SecurityContextConfigMarshall) trySeal(path string) *SecurityContextConfig {
	return &SecurityContextConfig{
		uid: required(s.UID, path+".uid"),
		gid: required(s.GID, path+".gid"),
	}
}

type ServicesDefaultsConfigMarshall struct {
	Init *InitServiceConfigMarshall `yaml:"init,omitempty"`
}

type InitServiceConfigMarshall struct {
	Resources *ResourcesConfigMarshall `yaml:"resources,omitempty"`
}

type ResourcesConfigMarshall struct {
	CPUs   string `yaml:"cpus,omitempty"`
	Memory string `yaml:"memory,omitempty"`
}

func (r *ResourcesConfigMarshall) trySeal(path string) *ResourcesConfig {
	cpus := r.CPUs
	if cpus == "" {
		cpus = "250m"
	}
	memory := r.Memory
	if memory == "" {
		memory = "250Mi"
	}
	return &ResourcesConfig{
		cpus:   quantity(cpus, path+".cpus"),
		memory: quantity(memory, path+".memory"),
	}
}

func quantity(v string, path string) string {
	if _, err := resource.ParseQuantity(v); err != nil {
		panic(fmt.Errorf("%s can not be parsed: %w", path, err))
	}
	return v
}

func duration(v string, fallback time.Duration, path string) time.Duration {
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(fmt.Errorf("%s can not be parsed: %w", path, err))
	}
	return d
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}
