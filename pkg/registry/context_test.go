package registry_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/helxplatform/appstore/pkg/actions"
	"github.com/helxplatform/appstore/pkg/api/types"
	"github.com/helxplatform/appstore/pkg/client"
	xe "github.com/helxplatform/appstore/pkg/errors"
	"github.com/helxplatform/appstore/pkg/model"
	"github.com/helxplatform/appstore/pkg/registry"
)

const composeSpec = `
version: "3.0"
services:
  jupyter-ds:
    image: {{ registry }}/jupyter-ds:v1
    ports:
      - 8888:8888
    deploy:
      resources:
        limits:
          cpus: 1
          memory: 4000M
          ephemeralStorage: 2G
        reservations:
          cpus: 1
          memory: 4000M
`

// recorder is a client.Transport which records start requests.
type recorder struct {
	started    []types.StartRequest
	containers string
}

func (r *recorder) Request(_ context.Context, verb string, body []byte) ([]byte, error) {
	switch verb {
	case actions.VerbStart:
		req := types.StartRequest{}
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		r.started = append(r.started, req)
		return []byte(fmt.Sprintf(
			`{"status": "success", "result": {"name": "%s-abc", "sid": "abc", "containers": %s}, "message": ""}`,
			req.Name, r.containers,
		)), nil
	case actions.VerbStatus:
		return []byte(`{"status": "success", "result": [], "message": ""}`), nil
	default:
		return []byte(`{"status": "success", "result": {}, "message": ""}`), nil
	}
}

func liveContext(t *testing.T, rec *recorder) (*registry.Live, *atomic.Int32) {
	t.Helper()
	specHits := new(atomic.Int32)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/app-specs/jupyter-ds/docker-compose.yaml":
			specHits.Add(1)
			w.Write([]byte(composeSpec))
		case "/app-specs/jupyter-ds/.env":
			w.Write([]byte("FROM_ENV=1\nNB_PREFIX=/overridden\n"))
		case "/app-specs/broken/docker-compose.yaml":
			w.Write([]byte("services: {{ unclosed"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	conf := fmt.Sprintf(`
contexts:
  common:
    apps:
      jupyter-ds:
        name: Jupyter Data Science
        services: { jupyter-ds: 8888 }
        env: { NB_PREFIX: / }
        proxy-rewrite-rule: true
      broken:
        name: Broken
        services: { broken: 80 }
      silent:
        name: Silent
        services: { silent: 80 }
repositories:
  dockstore: { url: %s/app-specs }
settings:
  registry: containers.renci.org
`, server.URL)

	r, err := registry.Load([]byte(conf), []byte("{}"))
	if err != nil {
		t.Fatal(err)
	}
	live, err := registry.NewLive("common", r, registry.NewFetcher("", t.TempDir()), client.New(rec))
	if err != nil {
		t.Fatal(err)
	}
	return live, specHits
}

func TestLive_Start(t *testing.T) {
	t.Run("it builds a start request from the registry and the spec", func(t *testing.T) {
		rec := &recorder{containers: `{"jupyter-ds": {"ip_address": null, "port-1": 8888}}`}
		testee, _ := liveContext(t, rec)

		resources := map[string]any{
			"deploy": map[string]any{
				"resources": map[string]any{
					"limits":       map[string]any{"cpus": "0.5", "memory": "2G"},
					"reservations": map[string]any{"cpus": "0.5", "memory": "2G"},
				},
			},
		}
		sys, err := testee.Start(
			context.Background(), model.Principal{Username: "jane", AccessToken: "t0k3n"},
			"jupyter-ds", resources, "helx.example.com",
		)
		if err != nil {
			t.Fatal(err)
		}
		if sys.Identifier != "abc" {
			t.Errorf("unexpected system: %+v", sys)
		}

		if len(rec.started) != 1 {
			t.Fatalf("started %d times", len(rec.started))
		}
		req := rec.started[0]
		if req.Name != "jupyter-ds" || req.Services["jupyter-ds"].Port != "8888" {
			t.Errorf("unexpected request: %+v", req)
		}
		if req.Env["FROM_ENV"] != "1" || req.Env["NB_PREFIX"] != "/" {
			t.Errorf("registry env should win over .env: %v", req.Env)
		}
		principal, err := model.ParsePrincipal(req.Principal)
		if err != nil {
			t.Fatal(err)
		}
		if principal.Username != "jane" || principal.AccessToken != "t0k3n" || principal.Host != "helx.example.com" {
			t.Errorf("unexpected principal: %+v", principal)
		}

		service := req.System["services"].(map[string]any)["jupyter-ds"].(map[string]any)
		if service["image"] != "containers.renci.org/jupyter-ds:v1" {
			t.Errorf("spec is not rendered with settings: %v", service["image"])
		}
		limits := service["deploy"].(map[string]any)["resources"].(map[string]any)["limits"].(map[string]any)
		if limits["cpus"] != "0.5" || limits["memory"] != "2G" || limits["ephemeralStorage"] != "2G" {
			t.Errorf("unexpected limits: %v", limits)
		}
		if rewrite := service["proxy_rewrite"].(map[string]any); rewrite["enabled"] != true {
			t.Errorf("unexpected proxy rewrite: %v", rewrite)
		}
		if _, ok := req.System["security_context"].(map[string]any); !ok {
			t.Errorf("security context is missing: %v", req.System)
		}
	})

	t.Run("when a declared service is not running, it is a start error", func(t *testing.T) {
		rec := &recorder{containers: `{}`}
		testee, _ := liveContext(t, rec)
		_, err := testee.Start(context.Background(), model.Principal{Username: "jane"}, "jupyter-ds", nil, "")
		if !errors.Is(err, xe.ErrStart) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unknown app is a context error", func(t *testing.T) {
		testee, _ := liveContext(t, &recorder{})
		_, err := testee.Start(context.Background(), model.Principal{Username: "jane"}, "nope", nil, "")
		if !errors.Is(err, xe.ErrContext) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestLive_Specs(t *testing.T) {
	testee, specHits := liveContext(t, &recorder{})

	t.Run("spec is fetched once, and copies are returned", func(t *testing.T) {
		spec, err := testee.GetSpec(context.Background(), "jupyter-ds")
		if err != nil {
			t.Fatal(err)
		}
		spec["services"] = nil
		again, err := testee.GetSpec(context.Background(), "jupyter-ds")
		if err != nil {
			t.Fatal(err)
		}
		if again["services"] == nil {
			t.Error("memoized spec is changed")
		}
		if n := specHits.Load(); n != 1 {
			t.Errorf("fetched %d times", n)
		}
	})

	t.Run("broken spec is an error, but its definition is empty", func(t *testing.T) {
		if _, err := testee.GetSpec(context.Background(), "broken"); !errors.Is(err, xe.ErrContext) {
			t.Errorf("unexpected error: %v", err)
		}
		if def := testee.GetDefinition(context.Background(), "broken"); len(def) != 0 {
			t.Errorf("unexpected definition: %v", def)
		}
	})

	t.Run("settings are empty when there is no .env", func(t *testing.T) {
		if s := testee.GetSettings(context.Background(), "silent"); s != "" {
			t.Errorf("unexpected settings: %q", s)
		}
		if s := testee.GetSettings(context.Background(), "jupyter-ds"); !strings.HasPrefix(s, "FROM_ENV=1") {
			t.Errorf("unexpected settings: %q", s)
		}
	})
}

func TestNewContext(t *testing.T) {
	r, err := registry.Load([]byte(appRegistry), []byte(appDefaults))
	if err != nil {
		t.Fatal(err)
	}

	t.Run("null context makes things up", func(t *testing.T) {
		c, err := registry.NewContext(registry.KindNull, "common", r, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		status, err := c.Status(context.Background(), types.StatusRequest{})
		if err != nil {
			t.Fatal(err)
		}
		if len(status.Services) != 5 || status.Services[0].AppID != "jupyter-ds" {
			t.Errorf("unexpected status: %+v", status)
		}
		sys, err := c.Start(context.Background(), model.Principal{Username: "jane"}, "jupyter-ds", nil, "")
		if err != nil {
			t.Fatal(err)
		}
		if len(sys.Services) != 1 || sys.Services[0].Port != "8888" {
			t.Errorf("unexpected system: %+v", sys)
		}
		if err := c.Delete(context.Background(), types.DeleteRequest{Name: "x"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unknown kind is an error", func(t *testing.T) {
		if _, err := registry.NewContext("dead", "common", r, nil, nil); !errors.Is(err, xe.ErrContext) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unknown product is an error", func(t *testing.T) {
		if _, err := registry.NewContext(registry.KindLive, "nope", r, nil, nil); !errors.Is(err, xe.ErrContext) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
