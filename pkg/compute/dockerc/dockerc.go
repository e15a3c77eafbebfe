// Package dockerc runs systems with docker compose on this host.
//
// Each system gets a directory `{appRoot}/{identifier}` holding its compose file,
// `.env` and metadata. The directory is the record of the system: Status lists
// directories, and Delete removes them.
package dockerc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/helxplatform/appstore/pkg/api/types"
	"github.com/helxplatform/appstore/pkg/compute"
	kconf "github.com/helxplatform/appstore/pkg/configs/tycho"
	xe "github.com/helxplatform/appstore/pkg/errors"
	"github.com/helxplatform/appstore/pkg/model"
	"github.com/helxplatform/appstore/pkg/templates"
	"github.com/labstack/gommon/log"
	"gopkg.in/yaml.v3"
)

// label put on containers by docker compose
const projectLabel = "com.docker.compose.project"

const metadataFile = "tycho.json"

// ContainerLister is a subset of the docker engine client.
type ContainerLister interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
}

// Runner runs a command in a directory, and waits it.
type Runner interface {
	Run(ctx context.Context, dir string, command ...string) error
}

type execRunner struct {
	log *log.Logger
}

func (r *execRunner) Run(ctx context.Context, dir string, command ...string) error {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", strings.Join(command, " "), err, out)
	}
	r.log.Debugf("%s: %s", strings.Join(command, " "), out)
	return nil
}

// metadata is written to tycho.json in the app directory.
type metadata struct {
	Name       string `json:"name"`
	SystemName string `json:"system_name"`
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Created    string `json:"created"`
}

type Compute struct {
	appRoot string
	command []string
	wait    time.Duration
	docker  ContainerLister
	runner  Runner
	port    func() int
	log     *log.Logger

	launches sync.WaitGroup
}

// type check: Compute is a Backend
var _ compute.Backend = &Compute{}

type Option func(*Compute) *Compute

// WithRunner replaces how commands are run.
func WithRunner(r Runner) Option {
	return func(c *Compute) *Compute {
		c.runner = r
		return c
	}
}

// WithPortPicker replaces how host ports are chosen.
func WithPortPicker(f func() int) Option {
	return func(c *Compute) *Compute {
		c.port = f
		return c
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Compute) *Compute {
		c.log = l
		return c
	}
}

// randomPort picks a port in [30000, 40000].
func randomPort() int {
	return 30000 + rand.IntN(10001)
}

func New(conf *kconf.DockerConfig, docker ContainerLister, opts ...Option) *Compute {
	c := &Compute{
		appRoot: conf.AppRoot(),
		command: conf.Command(),
		wait:    conf.ConfiguredWait(),
		docker:  docker,
		port:    randomPort,
		log:     log.New("dockerc"),
	}
	for _, o := range opts {
		c = o(c)
	}
	if c.runner == nil {
		c.runner = &execRunner{log: c.log}
	}
	return c
}

type configured struct {
	containers map[string]types.Endpoint
	err        error
}

// Start writes the app directory, and launches docker compose in background.
//
// It returns once ports of containers are known, or ConfiguredWait passes.
// In the latter case the result has no containers.
//
// When ctx is canceled before Start returns, the system is deleted and Start fails.
func (c *Compute) Start(ctx context.Context, system *model.System) (*types.StartResult, error) {
	appDir := filepath.Join(c.appRoot, system.Identifier)
	port := c.port()
	failed := func(err error) error {
		return xe.NewStart(fmt.Sprintf("Unable to start system: %s", system.Name), err)
	}

	done := make(chan configured, 1)
	finished := make(chan struct{})
	c.launches.Add(1)
	go func() {
		defer c.launches.Done()
		defer close(finished)

		containers, err := c.configure(appDir, system, port)
		done <- configured{containers: containers, err: err}
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			c.log.Warnf("start of system %s is canceled. it is not launched.", system.Name)
			return
		}

		lctx := context.WithoutCancel(ctx)
		c.log.Debug("garbage collecting unused docker networks")
		if err := c.runner.Run(lctx, appDir, "docker", "network", "prune", "--force"); err != nil {
			c.log.Warnf("network prune failed: %s", err)
		}
		up := append(slices.Clone(c.command), "--project-name", system.Name, "-f", system.Name+".yaml", "up", "--detach")
		if err := c.runner.Run(lctx, appDir, up...); err != nil {
			c.log.Errorf("system %s failed to run: %s", system.Name, err)
		}
	}()

	result := &types.StartResult{
		Name:       system.Name,
		SID:        system.Identifier,
		Containers: map[string]types.Endpoint{},
		ConnString: system.ConnString,
	}

	timer := time.NewTimer(c.wait)
	defer timer.Stop()
	select {
	case conf := <-done:
		if conf.err != nil {
			<-finished
			c.compensate(ctx, system)
			return nil, failed(conf.err)
		}
		if ctx.Err() == nil {
			result.Containers = conf.containers
			return result, nil
		}
	case <-timer.C:
		c.log.Warnf("system %s is not configured in %s. continue.", system.Name, c.wait)
		return result, nil
	case <-ctx.Done():
	}

	<-finished
	c.compensate(ctx, system)
	return nil, failed(ctx.Err())
}

// compensate deletes what a failed start has made, even if ctx is canceled.
func (c *Compute) compensate(ctx context.Context, system *model.System) {
	if err := c.Delete(context.WithoutCancel(ctx), system.Identifier); err != nil {
		c.log.Errorf("system %s is left after failed start: %s", system.Name, err)
	}
}

// configure writes the app directory, and finds host ports of containers.
func (c *Compute) configure(appDir string, system *model.System, port int) (map[string]types.Endpoint, error) {
	c.log.Debugf("creating compose app: %s", system.Identifier)
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		return nil, err
	}

	env := fmt.Sprintf("HOST_PORT=%d\nLOCAL_STORE=./\n", port)
	meta, err := json.Marshal(metadata{
		Name:       system.Name,
		SystemName: system.SystemName,
		Identifier: system.Identifier,
		Username:   system.Username,
		Created:    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	for name, content := range map[string]string{
		system.Name + ".yaml": system.SourceText,
		".env":                env,
		metadataFile:          string(meta),
	} {
		if err := os.WriteFile(filepath.Join(appDir, name), []byte(content), 0o644); err != nil {
			return nil, err
		}
	}

	spec := model.ComposeSpec{}
	if err := yaml.Unmarshal([]byte(templates.ApplyEnvironment(env, system.SourceText)), &spec); err != nil {
		return nil, err
	}

	containers := map[string]types.Endpoint{}
	for _, name := range spec.ServiceNames() {
		ports := map[string]int32{}
		for i, p := range spec.Services[name].Ports {
			host, _, _ := strings.Cut(fmt.Sprint(p), ":")
			n, err := strconv.ParseInt(host, 10, 32)
			if err != nil {
				c.log.Warnf("service %s: port %v is not a number", name, p)
				continue
			}
			ports[fmt.Sprintf("%s-%d", name, i)] = int32(n)
		}
		containers[name] = types.Endpoint{Ports: ports}
	}
	return containers, nil
}

// Wait blocks until launches in background finish.
func (c *Compute) Wait() {
	c.launches.Wait()
}

// Status lists app directories, with containers of their compose projects.
func (c *Compute) Status(ctx context.Context, req types.StatusRequest) ([]types.ServiceStatus, error) {
	entries, err := os.ReadDir(c.appRoot)
	if errors.Is(err, os.ErrNotExist) {
		return []types.ServiceStatus{}, nil
	}
	if err != nil {
		return nil, xe.NewTycho("Failed to get system status.", err)
	}

	rows := []types.ServiceStatus{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sid := e.Name()
		if req.Name != "" && req.Name != sid {
			continue
		}
		meta := c.metadata(sid)
		if req.Username != "" && req.Username != meta.Username {
			continue
		}

		cs, err := c.docker.ContainerList(ctx, container.ListOptions{
			All:     true,
			Filters: filters.NewArgs(filters.Arg("label", projectLabel+"="+meta.Name)),
		})
		if err != nil {
			return nil, xe.NewTycho("Failed to get system status.", err)
		}
		rows = append(rows, statusOf(sid, meta, cs))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SID < rows[j].SID })
	return rows, nil
}

// metadata reads tycho.json of an app. Apps without it are named "--".
func (c *Compute) metadata(sid string) metadata {
	meta := metadata{Name: "--", Identifier: sid}
	b, err := os.ReadFile(filepath.Join(c.appRoot, sid, metadataFile))
	if err != nil {
		return meta
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		c.log.Warnf("broken %s of %s: %s", metadataFile, sid, err)
	}
	return meta
}

func statusOf(sid string, meta metadata, cs []container.Summary) types.ServiceStatus {
	port := "--"
	ready := 0 < len(cs)
	for _, ct := range cs {
		if ct.State != "running" {
			ready = false
		}
		for _, p := range ct.Ports {
			if port == "--" && p.PublicPort != 0 {
				port = strconv.Itoa(int(p.PublicPort))
			}
		}
	}

	created := meta.Created
	if t, err := time.Parse(time.RFC3339, meta.Created); err == nil {
		created = fmt.Sprintf(
			"%d-%d-%d %d:%d:%d",
			t.Month(), t.Day(), t.Year(), t.Hour(), t.Minute(), t.Second(),
		)
	}

	return types.ServiceStatus{
		Name:          meta.Name,
		AppID:         meta.SystemName,
		SID:           sid,
		IPAddress:     "127.0.0.1",
		Port:          port,
		CreationTime:  created,
		Username:      meta.Username,
		Utilization:   map[string]map[string]string{},
		WorkspaceName: meta.SystemName,
		IsReady:       ready,
	}
}

// Delete runs `down` on the compose project, and removes the app directory.
//
// A missing directory is not an error.
func (c *Compute) Delete(ctx context.Context, name string) error {
	failed := func(err error) error {
		return xe.NewDelete(fmt.Sprintf("Failed to delete system: %s", name), err)
	}

	appDir := filepath.Join(c.appRoot, name)
	if _, err := os.Stat(appDir); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(appDir, "*"+name+"*.yaml"))
	if err != nil {
		return failed(err)
	}
	if len(files) != 0 {
		composeFile := filepath.Base(files[0])
		project := strings.TrimSuffix(composeFile, ".yaml")
		down := append(slices.Clone(c.command), "--project-name", project, "-f", composeFile, "down")
		if err := c.runner.Run(ctx, appDir, down...); err != nil {
			return failed(err)
		}
	}

	if err := os.RemoveAll(appDir); err != nil {
		return failed(err)
	}
	c.log.Infof("system %s is deleted", name)
	return nil
}

// Modify is not supported on docker compose.
func (c *Compute) Modify(_ context.Context, m *model.ModifySystem) (*types.ModifyResult, error) {
	return nil, xe.NewModify(
		fmt.Sprintf("Failed to modify system: %s", m.GUID),
		errors.New("docker-compose backplane does not support modify"),
	)
}
