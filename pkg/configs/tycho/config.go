package tycho

import (
	"slices"
	"time"
)

// Configuration of tycho.
//
// to get `Config` instance, use `Unmarshal` or `LoadTychoConfig`.
type Config struct {
	backplane     string
	strictVolumes bool
	templatePaths []string
	kube          *KubeConfig
	docker        *DockerConfig
	system        *SystemConfig
}

// compute backplane: "kubernetes" or "docker-compose".
func (c *Config) Backplane() string {
	return c.backplane
}

// When true, starting a system fails if a persistent volume claim is missing.
// Otherwise such volumes are dropped with a warning.
func (c *Config) StrictVolumes() bool {
	return c.strictVolumes
}

// directories searched for templates before built-in ones.
func (c *Config) TemplatePaths() []string {
	return slices.Clone(c.templatePaths)
}

func (c *Config) Kube() *KubeConfig {
	return c.kube
}

// WithKube returns a copy with kube replaced.
func (c *Config) WithKube(kube *KubeConfig) *Config {
	n := *c
	n.kube = kube
	return &n
}

func (c *Config) Docker() *DockerConfig {
	return c.docker
}

func (c *Config) System() *SystemConfig {
	return c.system
}

type KubeConfig struct {
	namespace        string
	ip               string
	ambassador       string
	loadBalancerWait time.Duration
}

// namespace to run systems in. Empty means "detect it".
func (k *KubeConfig) Namespace() string {
	return k.namespace
}

// fixed address of the node, like the one of minikube.
func (k *KubeConfig) IP() string {
	return k.ip
}

// WithIP returns a copy with the node address replaced.
func (k *KubeConfig) WithIP(ip string) *KubeConfig {
	c := *k
	c.ip = ip
	return &c
}

// name of the Service of ambassador.
func (k *KubeConfig) Ambassador() string {
	return k.ambassador
}

// how long to wait for a load balancer to get its ingress address.
func (k *KubeConfig) LoadBalancerWait() time.Duration {
	return k.loadBalancerWait
}

type DockerConfig struct {
	appRoot        string
	command        []string
	configuredWait time.Duration
}

// directory where app directories are created.
func (d *DockerConfig) AppRoot() string {
	return d.appRoot
}

// command line of docker compose, like ["docker", "compose"].
func (d *DockerConfig) Command() []string {
	return slices.Clone(d.command)
}

func (d *DockerConfig) ConfiguredWait() time.Duration {
	return d.configuredWait
}

type SystemConfig struct {
	securityContext *SecurityContextConfig
	initResources   *ResourcesConfig
	volumes         []string
}

func (s *SystemConfig) DefaultSecurityContext() *SecurityContextConfig {
	return s.securityContext
}

func (s *SystemConfig) InitResources() *ResourcesConfig {
	return s.initResources
}

// volumes mounted to every container, in form of `pvc://<claim>/<subpath>:<mountpath>`.
func (s *SystemConfig) Volumes() []string {
	return slices.Clone(s.volumes)
}

type SecurityContextConfig struct {
	uid string
	gid string
}

func (s *SecurityContextConfig) UID() string {
	return s.uid
}

func (s *SecurityContextConfig) GID() string {
	return s.gid
}

type ResourcesConfig struct {
	cpus   string
	memory string
}

func (r *ResourcesConfig) CPUs() string {
	return r.cpus
}

func (r *ResourcesConfig) Memory() string {
	return r.memory
}
