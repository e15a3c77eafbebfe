package tycho_test

import (
	"context"
	"errors"
	"testing"

	"github.com/helxplatform/appstore/pkg/api/types"
	"github.com/helxplatform/appstore/pkg/compute/dockerc"
	kconf "github.com/helxplatform/appstore/pkg/configs/tycho"
	xe "github.com/helxplatform/appstore/pkg/errors"
	"github.com/helxplatform/appstore/pkg/model"
	"github.com/helxplatform/appstore/pkg/tycho"
	"github.com/labstack/gommon/log"
)

type fakeBackend struct {
	started  []*model.System
	deleted  []string
	modified []*model.ModifySystem
}

func (f *fakeBackend) Start(_ context.Context, sys *model.System) (*types.StartResult, error) {
	f.started = append(f.started, sys)
	return &types.StartResult{Name: sys.Name, SID: sys.Identifier}, nil
}

func (f *fakeBackend) Status(context.Context, types.StatusRequest) ([]types.ServiceStatus, error) {
	return []types.ServiceStatus{}, nil
}

func (f *fakeBackend) Delete(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeBackend) Modify(_ context.Context, m *model.ModifySystem) (*types.ModifyResult, error) {
	f.modified = append(f.modified, m)
	return &types.ModifyResult{}, nil
}

func config(t *testing.T, backplane string) *kconf.Config {
	t.Helper()
	conf, err := kconf.Unmarshal([]byte(`
tycho:
  backplane: ` + backplane + `
  compute:
    system:
      defaults:
        securityContext: { uid: "1000", gid: "1000" }
`))
	if err != nil {
		t.Fatal(err)
	}
	return conf
}

func testee(t *testing.T) (*tycho.Tycho, *fakeBackend) {
	environ := kconf.DefaultEnviron()
	environ.DevPhase = "test"
	backend := &fakeBackend{}
	parser := model.NewParser(
		config(t, kconf.BackplaneKubernetes), environ,
		model.WithIdentifier(func() string { return "0123456789abcdef0123456789abcdef" }),
	)
	return tycho.New(parser, backend), backend
}

func TestTycho_Start(t *testing.T) {
	t.Run("it passes the parsed system to the backend", func(t *testing.T) {
		testee, backend := testee(t)
		result, err := testee.Start(context.Background(), types.StartRequest{
			Name:      "web",
			Principal: `{"username": "jane"}`,
			System: map[string]any{
				"services": map[string]any{"web": map[string]any{"image": "nginx"}},
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(backend.started) != 1 || result.SID != "0123456789abcdef0123456789abcdef" {
			t.Errorf("(started, result) = (%v, %+v)", backend.started, result)
		}
	})

	t.Run("when the request is broken, it is a start error", func(t *testing.T) {
		testee, backend := testee(t)
		_, err := testee.Start(context.Background(), types.StartRequest{Name: "web"})
		if !errors.Is(err, xe.ErrStart) || !errors.Is(err, model.ErrInvalidSystem) {
			t.Errorf("unexpected error: %v", err)
		}
		if len(backend.started) != 0 {
			t.Error("backend should not be called")
		}
	})
}

func TestTycho_DeleteAndModify(t *testing.T) {
	testee, backend := testee(t)
	ctx := context.Background()

	if err := testee.Delete(ctx, types.DeleteRequest{Name: "abc"}); err != nil {
		t.Fatal(err)
	}
	if len(backend.deleted) != 1 || backend.deleted[0] != "abc" {
		t.Errorf("deleted: %v", backend.deleted)
	}

	if _, err := testee.Modify(ctx, types.ModifyRequest{GUID: "abc", CPU: "1"}); err != nil {
		t.Fatal(err)
	}
	if len(backend.modified) != 1 || backend.modified[0].Resources["cpu"] != "1" {
		t.Errorf("modified: %+v", backend.modified)
	}

	_, err := testee.Modify(ctx, types.ModifyRequest{})
	if !errors.Is(err, xe.ErrModify) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewBackend(t *testing.T) {
	t.Run("docker-compose gives docker compose backplane", func(t *testing.T) {
		backend, err := tycho.NewBackend(
			context.Background(), config(t, kconf.BackplaneDockerCompose),
			kconf.DefaultEnviron(), log.New("test"),
		)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := backend.(*dockerc.Compute); !ok {
			t.Errorf("unexpected backend: %T", backend)
		}
	})
}
