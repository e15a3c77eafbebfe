package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/helxplatform/appstore/cmd/tycho/commands"
	"github.com/helxplatform/appstore/pkg/actions"
	"github.com/helxplatform/appstore/pkg/api/types"
	"github.com/helxplatform/appstore/pkg/appsupport"
	"github.com/helxplatform/appstore/pkg/buildtime"
	"github.com/helxplatform/appstore/pkg/client"
	"github.com/helxplatform/appstore/pkg/cmp"
)

type request struct {
	verb string
	body []byte
}

// recorder answers with canned envelopes, and keeps all requests.
type recorder struct {
	responses map[string]string
	requests  []request
}

func (r *recorder) Request(_ context.Context, verb string, body []byte) ([]byte, error) {
	r.requests = append(r.requests, request{verb: verb, body: body})
	return []byte(r.responses[verb]), nil
}

const started = `{
	"status": "success",
	"result": {"name": "nginx-abc", "sid": "abc", "containers": {"nginx": {"ip_address": "10.0.0.8", "port-1": 31000}}},
	"message": "Started system nginx-abc"
}`

type apps map[string]*appsupport.App

func (a apps) Get(_ context.Context, app string) (*appsupport.App, error) {
	if got, ok := a[app]; ok {
		return got, nil
	}
	return nil, appsupport.ErrAppNotFound
}

func run(t *testing.T, rec *recorder, source commands.AppSource, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	cmd := commands.New(
		commands.WithOutput(out),
		commands.WithAppSource(source),
		commands.WithConnector(func(_ context.Context, service string, opts ...client.Option) (*client.Client, error) {
			if service != client.DefaultURL {
				t.Errorf("service: (actual, expected) = (%s, %s)", service, client.DefaultURL)
			}
			return client.New(rec, opts...), nil
		}),
	)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func startRequest(t *testing.T, rec *recorder) types.StartRequest {
	t.Helper()
	if len(rec.requests) != 1 || rec.requests[0].verb != actions.VerbStart {
		t.Fatalf("unexpected requests: %+v", rec.requests)
	}
	req := types.StartRequest{}
	if err := json.Unmarshal(rec.requests[0].body, &req); err != nil {
		t.Fatal(err)
	}
	return req
}

func TestUp(t *testing.T) {
	t.Run("it generates a system from flags", func(t *testing.T) {
		rec := &recorder{responses: map[string]string{actions.VerbStart: started}}
		out, err := run(
			t, rec, apps{},
			"up", "-n", "nginx", "-c", "nginx:1.27", "-p", "80", "--command", "nginx -g daemon-off",
		)
		if err != nil {
			t.Fatal(err)
		}

		req := startRequest(t, rec)
		if req.Name != "nginx" {
			t.Errorf("name: (actual, expected) = (%s, %s)", req.Name, "nginx")
		}
		svc := req.System["services"].(map[string]any)["nginx"].(map[string]any)
		if svc["image"] != "nginx:1.27" || svc["entrypoint"] != "nginx -g daemon-off" {
			t.Errorf("unexpected service: %v", svc)
		}
		if _, ok := svc["volumes"]; ok {
			t.Errorf("volumes are not requested: %v", svc)
		}
		if req.Services["nginx"].Port != "80" {
			t.Errorf("port: %+v", req.Services)
		}
		if !strings.Contains(out, "10.0.0.8") || !strings.Contains(out, "31000") {
			t.Errorf("output: %s", out)
		}
	})

	t.Run("it reads a compose file, and the .env beside it", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "web")
		if err := os.MkdirAll(dir, os.FileMode(0755)); err != nil {
			t.Fatal(err)
		}
		compose := filepath.Join(dir, "docker-compose.yaml")
		if err := os.WriteFile(compose, []byte(`
version: "3"
services:
  web:
    image: nginx
    ports:
      - "8080:80"
`), os.FileMode(0644)); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("HOST_PORT=8080\n"), os.FileMode(0644)); err != nil {
			t.Fatal(err)
		}

		rec := &recorder{responses: map[string]string{actions.VerbStart: started}}
		if _, err := run(t, rec, apps{}, "up", "-f", compose); err != nil {
			t.Fatal(err)
		}

		req := startRequest(t, rec)
		if req.Name != "web" {
			t.Errorf("name: (actual, expected) = (%s, %s)", req.Name, "web")
		}
		if !cmp.MapEq(req.Env, map[string]string{"HOST_PORT": "8080"}) {
			t.Errorf("env: %v", req.Env)
		}
		if req.Services["web"].Port != "80" {
			t.Errorf("port: %+v", req.Services)
		}
	})

	t.Run("it takes an app from the app source", func(t *testing.T) {
		source := apps{
			"jupyter-ds": {
				System: map[string]any{
					"services": map[string]any{
						"jupyter-ds": map[string]any{"image": "jupyter/ds", "ports": []any{"8888"}},
					},
				},
				Settings: "NB_PREFIX=/\n",
			},
		}
		rec := &recorder{responses: map[string]string{actions.VerbStart: started}}
		out, err := run(t, rec, source, "up", "--app", "jupyter-ds")
		if err != nil {
			t.Fatal(err)
		}

		req := startRequest(t, rec)
		if req.Name != "jupyter-ds" || req.Env["NB_PREFIX"] != "/" {
			t.Errorf("unexpected request: %+v", req)
		}
		if !strings.Contains(out, "settings: NB_PREFIX=/") {
			t.Errorf("output: %s", out)
		}
	})

	for name, args := range map[string][]string{
		"nothing":            {"up"},
		"name only":          {"up", "-n", "nginx"},
		"unknown app":        {"up", "--app", "nope"},
		"app and file":       {"up", "--app", "a", "-f", "docker-compose.yaml"},
		"missing compose":    {"up", "-f", "/no/such/docker-compose.yaml"},
		"unexpected operand": {"up", "-n", "nginx", "-c", "nginx", "extra"},
	} {
		t.Run("when "+name+" is given, it fails without requests", func(t *testing.T) {
			rec := &recorder{responses: map[string]string{actions.VerbStart: started}}
			if _, err := run(t, rec, apps{}, args...); err == nil {
				t.Error("expected error, but got nil")
			}
			if len(rec.requests) != 0 {
				t.Errorf("unexpected requests: %+v", rec.requests)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	rec := &recorder{responses: map[string]string{
		actions.VerbStatus: `{"status": "success", "result": [{"name": "b", "sid": "2"}, {"name": "a", "sid": "1"}], "message": ""}`,
	}}
	out, err := run(t, rec, apps{}, "--username", "jane", "status", "--terse")
	if err != nil {
		t.Fatal(err)
	}
	if out != "1\n2\n" {
		t.Errorf("output: %q", out)
	}
	if !strings.Contains(string(rec.requests[0].body), `"username":"jane"`) {
		t.Errorf("request: %s", rec.requests[0].body)
	}
}

func TestDown(t *testing.T) {
	t.Run("every system is deleted", func(t *testing.T) {
		rec := &recorder{responses: map[string]string{
			actions.VerbDelete: `{"status": "success", "result": null, "message": "Deleted system"}`,
		}}
		out, err := run(t, rec, apps{}, "down", "a", "b")
		if err != nil {
			t.Fatal(err)
		}
		if len(rec.requests) != 2 ||
			string(rec.requests[0].body) != `{"name":"a"}` ||
			string(rec.requests[1].body) != `{"name":"b"}` {
			t.Errorf("unexpected requests: %+v", rec.requests)
		}
		if out != "a\nb\n" {
			t.Errorf("output: %q", out)
		}
	})

	t.Run("it requires a guid", func(t *testing.T) {
		if _, err := run(t, &recorder{}, apps{}, "down"); err == nil {
			t.Error("expected error, but got nil")
		}
	})
}

func TestModify(t *testing.T) {
	t.Run("it sends the modification and prints patches", func(t *testing.T) {
		rec := &recorder{responses: map[string]string{
			actions.VerbModify: `{"status": "success", "result": {"patches": [{"kind": "Deployment"}]}, "message": "Modified the system"}`,
		}}
		out, err := run(t, rec, apps{}, "modify", `{"tycho-guid": "abc", "labels": {"team": "a"}}`)
		if err != nil {
			t.Fatal(err)
		}

		sent := types.ModifyRequest{}
		if err := json.Unmarshal(rec.requests[0].body, &sent); err != nil {
			t.Fatal(err)
		}
		if sent.GUID != "abc" || sent.Labels["team"] != "a" {
			t.Errorf("unexpected request: %+v", sent)
		}
		if !strings.Contains(out, "Deployment") {
			t.Errorf("output: %s", out)
		}
	})

	t.Run("broken json is not sent", func(t *testing.T) {
		rec := &recorder{}
		if _, err := run(t, rec, apps{}, "modify", `{"tycho-guid":`); err == nil {
			t.Error("expected error, but got nil")
		}
		if len(rec.requests) != 0 {
			t.Errorf("unexpected requests: %+v", rec.requests)
		}
	})
}

func TestApps(t *testing.T) {
	t.Setenv("EXTERNAL_TYCHO_APP_REGISTRY_ENABLED", "")

	dir := t.TempDir()
	for name, content := range map[string]string{
		commands.RegistryFile: `
contexts:
  common:
    apps:
      jupyter-ds: { name: Jupyter Data Science, services: { jupyter-ds: 8888 } }
      imagej: { name: ImageJ, services: { imagej: 8080 } }
repositories:
  dockstore: { url: "https://example.com/app-specs" }
`,
		commands.DefaultsFile: `count: 1`,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), os.FileMode(0644)); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("it lists apps of the product", func(t *testing.T) {
		out, err := run(
			t, &recorder{}, apps{},
			"apps", "--registry-dir", dir, "--cache", filepath.Join(t.TempDir(), "cache.db"),
		)
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 3 {
			t.Fatalf("output: %s", out)
		}
		if !strings.HasPrefix(lines[1], "imagej") || !strings.Contains(lines[1], "ImageJ") {
			t.Errorf("line 1: %s", lines[1])
		}
		if !strings.HasPrefix(lines[2], "jupyter-ds") ||
			!strings.Contains(lines[2], "https://example.com/app-specs/jupyter-ds/docker-compose.yaml") {
			t.Errorf("line 2: %s", lines[2])
		}
	})

	t.Run("unknown product is an error", func(t *testing.T) {
		_, err := run(t, &recorder{}, apps{}, "apps", "--registry-dir", dir, "--product", "braini")
		if err == nil {
			t.Error("expected error, but got nil")
		}
	})

	t.Run("missing registry is an error", func(t *testing.T) {
		_, err := run(t, &recorder{}, apps{}, "apps", "--registry-dir", t.TempDir())
		if err == nil {
			t.Error("expected error, but got nil")
		}
	})
}

func TestVersion(t *testing.T) {
	out, err := run(t, &recorder{}, apps{}, "version")
	if err != nil {
		t.Fatal(err)
	}
	if out != buildtime.VersionString()+"\n" {
		t.Errorf("output: %q", out)
	}
}
