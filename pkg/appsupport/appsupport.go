// Package appsupport reads app specs from an app-support git repository.
//
// The repository has a directory per app under its apps directory,
// with docker-compose.yaml and optionally .env.
package appsupport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	xe "github.com/helxplatform/appstore/pkg/errors"
	"github.com/labstack/gommon/log"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRepoURL = "https://github.com/heliumplusdatastage/app-support-prototype.git"
	DefaultAppsDir = "dockstore-yaml-proposals"

	specFile = "docker-compose.yaml"
	envFile  = ".env"
)

// ErrAppNotFound is returned when the repository has no such app.
var ErrAppNotFound = errors.New("app not found")

// App is what the repository has for an app.
type App struct {
	// docker-compose structure
	System map[string]any

	// .env text. Empty when there is none.
	Settings string
}

// Cloner clones the repository at url into dir.
type Cloner func(ctx context.Context, dir string, url string) error

// GitClone clones the default branch, without history.
func GitClone(ctx context.Context, dir string, url string) error {
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:               url,
		Depth:             1,
		SingleBranch:      true,
		RecurseSubmodules: git.NoRecurseSubmodules,
	})
	return err
}

type Repository struct {
	url     string
	appsDir string
	workDir string
	timeout time.Duration
	clone   Cloner
	log     *log.Logger
}

type Option func(*Repository) *Repository

// WithCloner replaces how the repository is cloned. By default, GitClone.
func WithCloner(c Cloner) Option {
	return func(r *Repository) *Repository {
		r.clone = c
		return r
	}
}

// WithWorkDir sets where the repository is cloned temporarily. By default, os.TempDir().
func WithWorkDir(dir string) Option {
	return func(r *Repository) *Repository {
		r.workDir = dir
		return r
	}
}

// WithTimeout bounds cloning. 0 means no bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Repository) *Repository {
		r.timeout = d
		return r
	}
}

func WithLogger(l *log.Logger) Option {
	return func(r *Repository) *Repository {
		r.log = l
		return r
	}
}

func New(url string, appsDir string, opts ...Option) *Repository {
	r := &Repository{
		url:     url,
		appsDir: appsDir,
		timeout: time.Minute,
		clone:   GitClone,
		log:     log.New("appsupport"),
	}
	for _, o := range opts {
		r = o(r)
	}
	return r
}

// Get clones the repository and reads the app from it. The clone is removed after that.
func (r *Repository) Get(ctx context.Context, app string) (*App, error) {
	dir, err := os.MkdirTemp(r.workDir, "app-support-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	r.log.Debugf("cloning %s", r.url)
	if err := r.clone(ctx, dir, r.url); err != nil {
		return nil, xe.WrapWithNote("cloning "+r.url, err)
	}
	return ReadApp(filepath.Join(dir, r.appsDir), app)
}

// ReadApp reads the app in the apps directory.
func ReadApp(appsDir string, app string) (*App, error) {
	if app == "" || app == "." || app == ".." || app != filepath.Base(app) {
		return nil, fmt.Errorf("%w: %s", ErrAppNotFound, app)
	}
	appDir := filepath.Join(appsDir, app)
	if s, err := os.Stat(appDir); err != nil || !s.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrAppNotFound, app)
	}

	b, err := os.ReadFile(filepath.Join(appDir, specFile))
	if err != nil {
		return nil, err
	}
	system := map[string]any{}
	if err := yaml.Unmarshal(b, &system); err != nil {
		return nil, xe.WrapWithNote(specFile+" of "+app, err)
	}

	result := &App{System: system}
	settings, err := os.ReadFile(filepath.Join(appDir, envFile))
	switch {
	case err == nil:
		result.Settings = string(settings)
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}
	return result, nil
}
