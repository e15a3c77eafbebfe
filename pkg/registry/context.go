package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/helxplatform/appstore/pkg/api/types"
	"github.com/helxplatform/appstore/pkg/client"
	xe "github.com/helxplatform/appstore/pkg/errors"
	"github.com/helxplatform/appstore/pkg/model"
	"github.com/helxplatform/appstore/pkg/templates"
	"github.com/labstack/gommon/log"
)

// Context is the catalog of apps of a product, and runs them.
type Context interface {
	// Apps lists apps of the product.
	Apps() map[string]App

	// Start launches the app for principal.
	//
	// resourceRequest is merged into the compose service named as the app (like `{"deploy": {"resources": ...}}`).
	Start(ctx context.Context, principal model.Principal, appID string, resourceRequest map[string]any, host string) (*client.TychoSystem, error)

	Status(ctx context.Context, req types.StatusRequest) (*client.TychoStatus, error)
	Delete(ctx context.Context, req types.DeleteRequest) error
	Update(ctx context.Context, req types.ModifyRequest) (*types.ModifyResult, error)
}

// Kinds of Context
const (
	KindNull = "null"
	KindLive = "live"
)

// Live is the Context running apps with tycho.
type Live struct {
	product  string
	registry *Registry
	apps     map[string]App
	fetcher  *Fetcher
	client   *client.Client
	log      *log.Logger

	mu          sync.Mutex
	specs       map[string]map[string]any
	settings    map[string]string
	definitions map[string]map[string]any
}

// type check
var _ Context = &Live{}

type LiveOption func(*Live) *Live

func WithLogger(l *log.Logger) LiveOption {
	return func(c *Live) *Live {
		c.log = l
		return c
	}
}

// NewLive creates a Context of the product.
//
// It fails with ErrContext when the registry has no such product.
func NewLive(product string, r *Registry, f *Fetcher, c *client.Client, opts ...LiveOption) (*Live, error) {
	apps, err := r.Resolve(product)
	if err != nil {
		return nil, err
	}
	l := &Live{
		product:     product,
		registry:    r,
		apps:        apps,
		fetcher:     f,
		client:      c,
		log:         log.New("context"),
		specs:       map[string]map[string]any{},
		settings:    map[string]string{},
		definitions: map[string]map[string]any{},
	}
	for _, o := range opts {
		l = o(l)
	}
	l.log.Infof("load-context: id:%s apps:%v", product, sortedKeys(apps))
	return l, nil
}

func (l *Live) Apps() map[string]App {
	return l.apps
}

// App returns the app, or ErrContext when it is unknown.
func (l *Live) App(appID string) (App, error) {
	app, ok := l.apps[appID]
	if !ok {
		return App{}, xe.NewContext(fmt.Sprintf("app %s not found in product %s.", appID, l.product), nil)
	}
	return app, nil
}

// render fetches a spec and renders it with registry settings.
func (l *Live) render(ctx context.Context, location string) (map[string]any, error) {
	raw, err := l.fetcher.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	doc, err := templates.RenderText(string(raw), l.registry.Settings())
	if err != nil {
		return nil, err
	}
	return doc.First()
}

// GetSpec returns the rendered docker-compose spec of the app.
//
// Once resolved, specs are kept. Each call returns a copy of it.
func (l *Live) GetSpec(ctx context.Context, appID string) (map[string]any, error) {
	app, err := l.App(appID)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	spec, ok := l.specs[appID]
	l.mu.Unlock()
	if ok {
		return copyMap(spec), nil
	}

	l.log.Debugf("resolving specification for app: %s", appID)
	spec, err = l.render(ctx, app.Spec)
	if err != nil {
		return nil, xe.NewContext(fmt.Sprintf("app %s. failed to parse spec.", appID), err)
	}
	l.mu.Lock()
	l.specs[appID] = spec
	l.mu.Unlock()
	return copyMap(spec), nil
}

// GetDefinition is GetSpec which never fails. On failures, the definition is empty.
func (l *Live) GetDefinition(ctx context.Context, appID string) map[string]any {
	app, err := l.App(appID)
	if err != nil {
		l.log.Error(err)
		return map[string]any{}
	}

	l.mu.Lock()
	def, ok := l.definitions[appID]
	l.mu.Unlock()
	if ok {
		return copyMap(def)
	}

	def, err = l.render(ctx, app.Spec)
	if err != nil {
		l.log.Warnf("app %s: setting app definition to empty. %s", appID, err)
		def = map[string]any{}
	}
	l.mu.Lock()
	l.definitions[appID] = def
	l.mu.Unlock()
	return copyMap(def)
}

// GetSettings returns the .env text next to the spec of the app. It is empty when there is none.
func (l *Live) GetSettings(ctx context.Context, appID string) string {
	app, err := l.App(appID)
	if err != nil {
		l.log.Error(err)
		return ""
	}

	l.mu.Lock()
	env, ok := l.settings[appID]
	l.mu.Unlock()
	if ok {
		return env
	}

	body, err := l.fetcher.Fetch(ctx, dirOf(app.Spec)+"/.env")
	if err != nil {
		l.log.Debugf("using empty settings for %s: %s", appID, err)
	} else {
		env = string(body)
	}
	l.mu.Lock()
	l.settings[appID] = env
	l.mu.Unlock()
	return env
}

// GetEnvRegistry updates settings with env of the app in the registry.
func (l *Live) GetEnvRegistry(appID string, settings map[string]string) map[string]string {
	for k, v := range l.apps[appID].Env {
		settings[k] = v
	}
	return settings
}

// child returns m[key] as a map, creating it when missing.
func child(m map[string]any, key string) map[string]any {
	if c, ok := m[key].(map[string]any); ok {
		return c
	}
	c := map[string]any{}
	m[key] = c
	return c
}

// carryEphemeralStorage copies ephemeralStorage of deploy.resources.{limits,reservations} in the spec
// into the resource request.
func carryEphemeralStorage(service map[string]any, resourceRequest map[string]any) {
	resources, _ := child(service, "deploy")["resources"].(map[string]any)
	for _, kind := range []string{"limits", "reservations"} {
		spec, _ := resources[kind].(map[string]any)
		es, ok := spec["ephemeralStorage"]
		if !ok {
			continue
		}
		child(child(child(resourceRequest, "deploy"), "resources"), kind)["ephemeralStorage"] = es
	}
}

func (l *Live) Start(ctx context.Context, principal model.Principal, appID string, resourceRequest map[string]any, host string) (*client.TychoSystem, error) {
	l.log.Infof("start: principal: %s app_id: %s host: %s", principal.Username, appID, host)
	app, err := l.App(appID)
	if err != nil {
		return nil, err
	}
	spec, err := l.GetSpec(ctx, appID)
	if err != nil {
		return nil, err
	}
	settings := l.GetEnvRegistry(appID, templates.ParseEnv(l.GetSettings(ctx, appID)))

	services := map[string]types.ServiceRequest{}
	for name, port := range app.Services {
		services[name] = types.ServiceRequest{Port: port, Clients: []string{}}
	}

	principal.Host = host

	if app.SecurityContext != nil {
		spec["security_context"] = app.SecurityContext
	} else {
		spec["security_context"] = map[string]any{}
	}

	service, ok := child(spec, "services")[appID].(map[string]any)
	if !ok {
		return nil, xe.NewStart(
			fmt.Sprintf("Unable to start system: %s", appID),
			fmt.Errorf("spec of %s has no service %s", appID, appID),
		)
	}
	service["ext"] = app.Ext

	request := copyMap(resourceRequest)
	carryEphemeralStorage(service, request)
	for k, v := range request {
		service[k] = v
	}

	service["conn_string"] = app.ConnString
	rewrite := map[string]any{"enabled": false, "target": nil}
	if app.ProxyRewrite != nil {
		rewrite["enabled"] = app.ProxyRewrite.Enabled
		if app.ProxyRewrite.Target != nil {
			rewrite["target"] = *app.ProxyRewrite.Target
		}
	}
	if app.ProxyRewriteRule {
		rewrite["enabled"] = true
	}
	service["proxy_rewrite"] = rewrite
	service["gitea_integration"] = app.GiteaIntegration

	sys, err := l.client.Start(ctx, types.StartRequest{
		Name:           appID,
		Principal:      principal.String(),
		ServiceAccount: app.ServiceAccount,
		Env:            settings,
		System:         spec,
		Services:       services,
	})
	if err != nil {
		return nil, err
	}

	running := map[string]string{}
	for _, s := range sys.Services {
		running[s.Name] = s.Port
	}
	for _, name := range sortedKeys(services) {
		if _, ok := running[name]; !ok {
			return sys, xe.NewStart(
				fmt.Sprintf("Svc %s expected but %v actually running.", name, sortedKeys(running)), nil,
			)
		}
	}
	l.log.Infof("started app id:%s user:%s id:%s services:%v", appID, principal.Username, sys.Identifier, running)
	return sys, nil
}

func (l *Live) Status(ctx context.Context, req types.StatusRequest) (*client.TychoStatus, error) {
	return l.client.Status(ctx, req)
}

func (l *Live) Delete(ctx context.Context, req types.DeleteRequest) error {
	return l.client.Delete(ctx, req)
}

func (l *Live) Update(ctx context.Context, req types.ModifyRequest) (*types.ModifyResult, error) {
	return l.client.Patch(ctx, req)
}

// Null is a Context which runs nothing, for developing clients.
type Null struct {
	apps map[string]App
	log  *log.Logger
}

// type check
var _ Context = &Null{}

// NewNull creates a Null context. Apps are taken from r when it is given.
func NewNull(product string, r *Registry) (*Null, error) {
	n := &Null{apps: map[string]App{}, log: log.New("context")}
	if r != nil {
		apps, err := r.Resolve(product)
		if err != nil {
			return nil, err
		}
		n.apps = apps
	}
	return n, nil
}

func (n *Null) Apps() map[string]App {
	return n.apps
}

// Status makes up some rows.
func (n *Null) Status(context.Context, types.StatusRequest) (*client.TychoStatus, error) {
	status := &client.TychoStatus{Status: types.StatusSuccess, Message: "..."}
	for range 5 {
		id := uuid.NewString()
		status.Services = append(status.Services, client.TychoService{
			Name:         "jupyter-ds-" + id,
			AppID:        "jupyter-ds",
			Identifier:   id,
			IPAddress:    "x.y.z.m",
			Port:         "8080",
			CreationTime: "time",
			Total:        client.TotalOf(nil),
		})
	}
	return status, nil
}

// Delete ignores deletes.
func (n *Null) Delete(_ context.Context, req types.DeleteRequest) error {
	n.log.Debugf("delete: %s", req.Name)
	return nil
}

func (n *Null) Update(context.Context, types.ModifyRequest) (*types.ModifyResult, error) {
	return &types.ModifyResult{Patches: []map[string]any{}}, nil
}

// Start pretends that the app is started.
func (n *Null) Start(_ context.Context, principal model.Principal, appID string, _ map[string]any, _ string) (*client.TychoSystem, error) {
	n.log.Debugf("start: %s %s", principal.Username, appID)
	app, ok := n.apps[appID]
	if !ok {
		return nil, xe.NewContext(fmt.Sprintf("app %s not found.", appID), nil)
	}
	sys := &client.TychoSystem{
		Status:     types.StatusSuccess,
		Name:       app.Name,
		Identifier: uuid.NewString(),
		Message:    "mock: testing...",
	}
	for _, name := range sortedKeys(app.Services) {
		sys.Services = append(sys.Services, client.TychoService{
			Name: name, AppID: app.Name, IPAddress: "x.y.z", Port: app.Services[name],
		})
	}
	return sys, nil
}

// NewContext creates a Context of kind KindNull or KindLive.
//
// f and c are used for live contexts only.
func NewContext(kind string, product string, r *Registry, f *Fetcher, c *client.Client) (Context, error) {
	switch kind {
	case KindNull:
		n, err := NewNull(product, r)
		if err != nil {
			return nil, err
		}
		return n, nil
	case KindLive:
		l, err := NewLive(product, r, f, c)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, xe.NewContext(fmt.Sprintf("unknown context type: %s", kind), nil)
	}
}
