// Package registry reads the app registry, and runs its apps.
//
// An app registry has contexts, which are catalogs of apps for products.
// A context may extend other contexts, and may mix in apps of other contexts:
//
//	contexts:
//	  common:
//	    apps:
//	      jupyter-ds: { name: Jupyter Data Science, services: { jupyter-ds: 8888 } }
//	  braini:
//	    extends: [ common ]
//	    mixin: [ restartr ]
//	    apps: { ... }
//	repositories:
//	  dockstore: { url: https://github.com/helxplatform/helx-apps/raw/master/app-specs }
//	settings: { ... }
//
// Contexts are flattened when the registry is loaded.
package registry

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	kconf "github.com/helxplatform/appstore/pkg/configs/tycho"
	xe "github.com/helxplatform/appstore/pkg/errors"
	"github.com/helxplatform/appstore/pkg/templates"
	"github.com/labstack/gommon/log"
	"gopkg.in/yaml.v3"
)

// keys of a context which are not app overrides
const (
	keyExtends = "extends"
	keyMixin   = "mixin"
	keyApps    = "apps"
)

type Repository struct {
	URL string `yaml:"url"`
}

// repositories keeps the order in the registry. The first one is the default.
type repositories struct {
	keys  []string
	byKey map[string]Repository
}

func (rs *repositories) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: repositories should be a mapping", n.Line)
	}
	rs.byKey = map[string]Repository{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		repo := Repository{}
		if err := n.Content[i+1].Decode(&repo); err != nil {
			return err
		}
		rs.keys = append(rs.keys, key)
		rs.byKey[key] = repo
	}
	return nil
}

type document struct {
	Contexts     map[string]map[string]any `yaml:"contexts"`
	Repositories repositories              `yaml:"repositories"`
	Settings     map[string]any            `yaml:"settings"`
}

// ProxyRewrite is the proxy-rewrite entry of an app.
type ProxyRewrite struct {
	Enabled bool    `yaml:"enabled"`
	Target  *string `yaml:"target"`
}

// App is an entry of a flattened context.
type App struct {
	ID string `yaml:"-"`

	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Details     string `yaml:"details"`
	Docs        string `yaml:"docs"`
	Spec        string `yaml:"spec"`
	Icon        string `yaml:"icon"`

	Env             map[string]string `yaml:"env"`
	SecurityContext map[string]any    `yaml:"securityContext"`
	ServiceAccount  string            `yaml:"serviceAccount"`
	Ext             any               `yaml:"ext"`

	ConnString       string        `yaml:"conn_string"`
	ProxyRewrite     *ProxyRewrite `yaml:"proxy-rewrite"`
	ProxyRewriteRule bool          `yaml:"proxy-rewrite-rule"`
	GiteaIntegration bool          `yaml:"gitea-integration"`

	// container name -> port
	Services map[string]string `yaml:"services"`

	Count         *int `yaml:"count"`
	LockResources bool `yaml:"lock-resources"`

	// the app as it is in the registry, flattened.
	Raw map[string]any `yaml:"-"`
}

func appOf(id string, raw map[string]any) (App, error) {
	b, err := yaml.Marshal(raw)
	if err != nil {
		return App{}, err
	}
	app := App{}
	if err := yaml.Unmarshal(b, &app); err != nil {
		return App{}, xe.NewContext(fmt.Sprintf("app %s is malformed.", id), err)
	}
	app.ID = id
	app.Raw = raw
	return app, nil
}

// Registry is a loaded app registry.
type Registry struct {
	repositories repositories
	settings     map[string]any

	// context -> app id -> app
	contexts map[string]map[string]App
}

type loadOptions struct {
	baseURL string
	environ kconf.Environ
	log     *log.Logger
}

type LoadOption func(*loadOptions) *loadOptions

// WithBaseURL sets where the registry is. Relative repository URLs are resolved against it.
func WithBaseURL(u string) LoadOption {
	return func(o *loadOptions) *loadOptions {
		o.baseURL = withSlash(u)
		return o
	}
}

// WithEnviron sets the environment. It tells the branch of dockstore apps.
func WithEnviron(e kconf.Environ) LoadOption {
	return func(o *loadOptions) *loadOptions {
		o.environ = e
		return o
	}
}

func WithLoadLogger(l *log.Logger) LoadOption {
	return func(o *loadOptions) *loadOptions {
		o.log = l
		return o
	}
}

// withSlash makes u end with "/", so that resolving relative references keeps its last segment.
func withSlash(u string) string {
	if u == "" || strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}

// Load reads the registry and the app defaults, and flattens every context.
//
// Errors are ErrContext when contexts refer unknown contexts or extend each other in a cycle.
func Load(registry []byte, defaults []byte, opts ...LoadOption) (*Registry, error) {
	o := &loadOptions{environ: kconf.DefaultEnviron(), log: log.New("registry")}
	for _, opt := range opts {
		o = opt(o)
	}

	doc := document{}
	if err := yaml.Unmarshal(registry, &doc); err != nil {
		return nil, xe.NewContext("app registry is malformed.", err)
	}
	appDefaults := map[string]any{}
	if err := yaml.Unmarshal(defaults, &appDefaults); err != nil {
		return nil, xe.NewContext("app defaults are malformed.", err)
	}

	g := graph{contexts: doc.Contexts}
	if err := g.check(); err != nil {
		return nil, err
	}

	r := &Registry{
		repositories: doc.Repositories,
		settings:     doc.Settings,
		contexts:     map[string]map[string]App{},
	}
	if r.settings == nil {
		r.settings = map[string]any{}
	}

	for _, name := range g.names() {
		raw := g.inherit(name)
		for _, mixer := range g.mixins(name) {
			mixerApps, _ := g.contexts[mixer][keyApps].(map[string]any)
			for id, app := range raw {
				if m, ok := mixerApps[id].(map[string]any); ok {
					o.log.Debugf("mixing %s from %s into %s", id, mixer, name)
					fillGaps(app, m)
				}
			}
		}
		for _, app := range raw {
			fillGaps(app, appDefaults)
		}

		apps := map[string]App{}
		for _, id := range sortedKeys(raw) {
			appRaw := raw[id]
			if err := r.resolveURLs(id, appRaw, o); err != nil {
				return nil, err
			}
			overrides, ok := g.contexts[name][id].(map[string]any)
			if ok {
				for k, v := range overrides {
					appRaw[k] = deepCopy(v)
				}
			}
			app, err := appOf(id, appRaw)
			if err != nil {
				return nil, err
			}
			apps[id] = app
		}
		r.contexts[name] = apps
		o.log.Debugf("context %s: apps %v", name, sortedKeys(apps))
	}
	return r, nil
}

// resolveURLs fills spec and icon of app, and substitutes repository URLs into spec, icon and docs.
func (r *Registry) resolveURLs(id string, app map[string]any, o *loadOptions) error {
	repoMap := map[string]string{}
	for k, repo := range r.repositories.byKey {
		repoMap[k] = repo.URL
	}

	spec, _ := app["spec"].(string)
	if spec == "" {
		keys := r.repositories.keys
		if len(keys) == 0 {
			return xe.NewContext("No spec URL and no repositories specified.", nil)
		}
		repoURL := r.repositories.byKey[keys[0]].URL
		if !strings.HasPrefix(repoURL, "http") {
			if o.baseURL == "" {
				return xe.NewContext(
					fmt.Sprintf("repository %s is relative, but the registry has no base URL.", keys[0]), nil,
				)
			}
			base, err := url.Parse(o.baseURL)
			if err != nil {
				return xe.NewContext("base URL is malformed.", err)
			}
			ref, err := url.Parse(repoURL)
			if err != nil {
				return xe.NewContext(fmt.Sprintf("repository %s is malformed.", keys[0]), err)
			}
			repoURL = base.ResolveReference(ref).String()
		}
		if o.environ.ExternalAppRegistryConfigured && !o.environ.ExternalAppRegistryEnabled && o.environ.DockstoreAppsBranch != "" {
			repoURL = strings.ReplaceAll(repoURL, "master", o.environ.DockstoreAppsBranch)
		}
		spec = fmt.Sprintf("%s/%s/docker-compose.yaml", strings.TrimSuffix(repoURL, "/"), id)
	}
	app["spec"] = templates.SafeSubstitute(spec, repoMap)
	app["icon"] = templates.SafeSubstitute(dirOf(spec)+"/icon.png", repoMap)
	if docs, ok := app["docs"].(string); ok {
		app["docs"] = templates.SafeSubstitute(docs, repoMap)
	}
	return nil
}

// dirOf cuts the last path segment of a URL or a path.
func dirOf(u string) string {
	if i := strings.LastIndex(u, "/"); 0 <= i {
		return u[:i]
	}
	return "."
}

// Contexts lists names of contexts.
func (r *Registry) Contexts() []string {
	return sortedKeys(r.contexts)
}

// Settings is the template context to render app specs.
func (r *Registry) Settings() map[string]any {
	return copyMap(r.settings)
}

// Resolve returns apps of the product's context.
func (r *Registry) Resolve(product string) (map[string]App, error) {
	apps, ok := r.contexts[product]
	if !ok {
		return nil, xe.NewContext(fmt.Sprintf("undefined product %s not found in contexts.", product), nil)
	}
	resolved := make(map[string]App, len(apps))
	for id, app := range apps {
		app.Raw = copyMap(app.Raw)
		resolved[id] = app
	}
	return resolved, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadFrom fetches the registry and the app defaults with f, and loads them.
func LoadFrom(ctx context.Context, f *Fetcher, registryName string, defaultsName string, opts ...LoadOption) (*Registry, error) {
	registry, err := f.Fetch(ctx, registryName)
	if err != nil {
		return nil, xe.NewContext(fmt.Sprintf("failed to load %s.", registryName), err)
	}
	defaults, err := f.Fetch(ctx, defaultsName)
	if err != nil {
		return nil, xe.NewContext(fmt.Sprintf("failed to load %s.", defaultsName), err)
	}
	return Load(registry, defaults, append([]LoadOption{WithBaseURL(f.BaseURL())}, opts...)...)
}
