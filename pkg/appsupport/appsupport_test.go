package appsupport_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/helxplatform/appstore/pkg/appsupport"
)

// writeRepo writes files of an app-support repository into dir.
func writeRepo(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"apps/jupyter-ds/docker-compose.yaml": "services:\n  jupyter-ds:\n    image: jupyter/datascience-notebook\n",
		"apps/jupyter-ds/.env":                "HOST_PORT=8888\n",
		"apps/nginx/docker-compose.yaml":      "services:\n  nginx:\n    image: nginx\n",
		"apps/broken/docker-compose.yaml":     "services: [\n",
	}
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRepository_Get(t *testing.T) {
	var cloned string
	cloner := func(_ context.Context, dir string, url string) error {
		if url != "https://example.com/app-support.git" {
			t.Errorf("unexpected url: %s", url)
		}
		cloned = dir
		writeRepo(t, dir)
		return nil
	}
	testee := appsupport.New(
		"https://example.com/app-support.git", "apps",
		appsupport.WithCloner(cloner), appsupport.WithWorkDir(t.TempDir()),
	)

	for name, testcase := range map[string]struct {
		when     string
		then     string
		settings string
		err      bool
	}{
		"app with settings":    {when: "jupyter-ds", then: "jupyter-ds", settings: "HOST_PORT=8888\n"},
		"app without settings": {when: "nginx", then: "nginx"},
		"broken app":           {when: "broken", err: true},
		"unknown app":          {when: "rstudio", err: true},
		"escaping app":         {when: "../apps/nginx", err: true},
	} {
		t.Run(name, func(t *testing.T) {
			app, err := testee.Get(context.Background(), testcase.when)
			if testcase.err {
				if err == nil {
					t.Error("expected error, but got nil")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			services := app.System["services"].(map[string]any)
			if _, ok := services[testcase.then]; !ok {
				t.Errorf("unexpected system: %v", app.System)
			}
			if app.Settings != testcase.settings {
				t.Errorf("(actual, expected) = (%q, %q)", app.Settings, testcase.settings)
			}
			if _, err := os.Stat(cloned); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("clone is left: %s", cloned)
			}
		})
	}

	t.Run("unknown app is ErrAppNotFound", func(t *testing.T) {
		if _, err := testee.Get(context.Background(), "rstudio"); !errors.Is(err, appsupport.ErrAppNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("clone failure is an error", func(t *testing.T) {
		failing := appsupport.New("x", "apps", appsupport.WithCloner(func(context.Context, string, string) error {
			return errors.New("fake error")
		}))
		if _, err := failing.Get(context.Background(), "nginx"); err == nil {
			t.Error("expected error, but got nil")
		}
	})
}
