package actions_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/helxplatform/appstore/pkg/actions"
	"github.com/helxplatform/appstore/pkg/api/types"
	xe "github.com/helxplatform/appstore/pkg/errors"
	"github.com/helxplatform/appstore/pkg/metrics"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type MockTycho struct {
	Impl struct {
		Start  func(ctx context.Context, req types.StartRequest) (*types.StartResult, error)
		Status func(ctx context.Context, req types.StatusRequest) ([]types.ServiceStatus, error)
		Delete func(ctx context.Context, req types.DeleteRequest) error
		Modify func(ctx context.Context, req types.ModifyRequest) (*types.ModifyResult, error)
	}
	Called struct {
		Start  uint64
		Status uint64
		Delete uint64
		Modify uint64
	}
}

func (m *MockTycho) Start(ctx context.Context, req types.StartRequest) (*types.StartResult, error) {
	m.Called.Start += 1
	if m.Impl.Start == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.Start(ctx, req)
}

func (m *MockTycho) Status(ctx context.Context, req types.StatusRequest) ([]types.ServiceStatus, error) {
	m.Called.Status += 1
	if m.Impl.Status == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.Status(ctx, req)
}

func (m *MockTycho) Delete(ctx context.Context, req types.DeleteRequest) error {
	m.Called.Delete += 1
	if m.Impl.Delete == nil {
		return errors.New("[MOCK] not implemented")
	}
	return m.Impl.Delete(ctx, req)
}

func (m *MockTycho) Modify(ctx context.Context, req types.ModifyRequest) (*types.ModifyResult, error) {
	m.Called.Modify += 1
	if m.Impl.Modify == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.Modify(ctx, req)
}

const startBody = `{
	"name": "jupyter-ds",
	"principal": "{\"username\": \"jane\"}",
	"system": {"services": {"jupyter-ds": {"image": "jupyter/datascience-notebook"}}},
	"services": {"jupyter-ds": {"port": 8888, "clients": []}}
}`

func TestStart(t *testing.T) {
	t.Run("it dispatches a valid request", func(t *testing.T) {
		m := &MockTycho{}
		m.Impl.Start = func(_ context.Context, req types.StartRequest) (*types.StartResult, error) {
			if req.Name != "jupyter-ds" || req.Services["jupyter-ds"].Port != "8888" {
				t.Errorf("unexpected request: %+v", req)
			}
			return &types.StartResult{Name: "jupyter-ds-abc", SID: "abc"}, nil
		}
		testee, err := actions.New(m)
		if err != nil {
			t.Fatal(err)
		}

		env := testee.Start(context.Background(), []byte(startBody))
		if env.Status != types.StatusSuccess || env.Message != "Started system jupyter-ds-abc" {
			t.Errorf("unexpected envelope: %+v", env)
		}
		if r, ok := env.Result.(*types.StartResult); !ok || r.SID != "abc" {
			t.Errorf("unexpected result: %+v", env.Result)
		}
	})

	for name, testcase := range map[string]struct {
		when string
		then string
	}{
		"missing name":         {when: `{"principal": "{}", "system": {"services": {"a": {}}}}`},
		"no services":          {when: `{"name": "a", "principal": "{}", "system": {"services": {}}}`},
		"port is not a number": {when: `{"name": "a", "principal": "{}", "system": {"services": {"a": {}}}, "services": {"a": {"port": true}}}`},
		"not json":             {when: `name: a`},
		"service without port": {when: `{"name": "a", "principal": "{}", "system": {"services": {"a": {}}}, "services": {"a": {"clients": []}}}`},
	} {
		t.Run("when the request has "+name+", it is an error envelope", func(t *testing.T) {
			m := &MockTycho{}
			testee, err := actions.New(m)
			if err != nil {
				t.Fatal(err)
			}
			env := testee.Start(context.Background(), []byte(testcase.when))
			if env.Status != types.StatusError || env.Message != "Failed to create system." {
				t.Errorf("unexpected envelope: %+v", env)
			}
			if r, ok := env.Result.(types.ErrorResult); !ok || r.Error == "" {
				t.Errorf("unexpected result: %+v", env.Result)
			}
			if m.Called.Start != 0 {
				t.Error("invalid request is dispatched")
			}
		})
	}

	t.Run("when starting fails, the result tells why", func(t *testing.T) {
		m := &MockTycho{}
		m.Impl.Start = func(context.Context, types.StartRequest) (*types.StartResult, error) {
			return nil, xe.NewStart("Unable to start system: jupyter-ds", errors.New("quota exceeded"))
		}
		met := metrics.New()
		testee, err := actions.New(m, actions.WithMetrics(met))
		if err != nil {
			t.Fatal(err)
		}

		env := testee.Start(context.Background(), []byte(startBody))
		expected := types.Envelope{
			Status:  types.StatusError,
			Result:  types.ErrorResult{Error: "Unable to start system: jupyter-ds"},
			Message: "Failed to create system.",
		}
		if env != expected {
			t.Errorf("(actual, expected) = (%+v, %+v)", env, expected)
		}
		if n := testutil.ToFloat64(met.Requests.WithLabelValues(actions.VerbStart, metrics.OutcomeFailure)); n != 1 {
			t.Errorf("failures counted: %v", n)
		}
	})

	t.Run("when starting fails, the cause is logged but not responded", func(t *testing.T) {
		cause := xe.Wrap(errors.New("volume nfs://bad:/d of jupyter-ds: only pvc volumes are supported"))
		m := &MockTycho{}
		m.Impl.Start = func(context.Context, types.StartRequest) (*types.StartResult, error) {
			return nil, xe.NewStart("Unable to start system: jupyter-ds", cause)
		}
		logs := new(bytes.Buffer)
		l := log.New("actions")
		l.SetOutput(logs)
		testee, err := actions.New(m, actions.WithLogger(l))
		if err != nil {
			t.Fatal(err)
		}

		env := testee.Start(context.Background(), []byte(startBody))
		if r, ok := env.Result.(types.ErrorResult); !ok || r.Error != "Unable to start system: jupyter-ds" {
			t.Errorf("unexpected result: %+v", env.Result)
		}
		if !strings.Contains(logs.String(), "only pvc volumes are supported") {
			t.Errorf("cause is not logged: %s", logs.String())
		}
	})
}

func TestStatus(t *testing.T) {
	m := &MockTycho{}
	m.Impl.Status = func(_ context.Context, req types.StatusRequest) ([]types.ServiceStatus, error) {
		if req.Name == "broken" {
			return nil, xe.NewTycho("Failed to get system status.", errors.New("fake error"))
		}
		return []types.ServiceStatus{{Name: "a-" + req.Name, SID: req.Name, Username: req.Username}}, nil
	}
	testee, err := actions.New(m)
	if err != nil {
		t.Fatal(err)
	}

	for name, testcase := range map[string]struct {
		when string
		then types.Status
	}{
		"empty request":    {when: `{}`, then: types.StatusSuccess},
		"null name":        {when: `{"name": null}`, then: types.StatusSuccess},
		"name and user":    {when: `{"name": "abc", "username": "jane"}`, then: types.StatusSuccess},
		"broken name type": {when: `{"name": 1}`, then: types.StatusError},
		"failing backend":  {when: `{"name": "broken"}`, then: types.StatusError},
	} {
		t.Run(name, func(t *testing.T) {
			env := testee.Status(context.Background(), []byte(testcase.when))
			if env.Status != testcase.then {
				t.Errorf("(actual, expected) = (%+v, %v)", env, testcase.then)
			}
			if env.Status == types.StatusError && env.Message != "Failed to get system status." {
				t.Errorf("message: %s", env.Message)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	m := &MockTycho{}
	m.Impl.Delete = func(_ context.Context, req types.DeleteRequest) error {
		if req.Name == "broken" {
			return xe.NewDelete("Failed to delete system: broken", errors.New("fake error"))
		}
		return nil
	}
	testee, err := actions.New(m)
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"abc", "nonexistent"} {
		env := testee.Delete(context.Background(), []byte(`{"name": "`+name+`"}`))
		actual, err := json.Marshal(env)
		if err != nil {
			t.Fatal(err)
		}
		expected := `{"status":"success","result":{},"message":"Deleted system ` + name + `"}`
		if string(actual) != expected {
			t.Errorf("(actual, expected) = (%s, %s)", actual, expected)
		}
	}
	if env := testee.Delete(context.Background(), []byte(`{"name": "broken"}`)); env.Status != types.StatusError || env.Message != "Failed to delete system broken." {
		t.Errorf("unexpected envelope: %+v", env)
	}
	if env := testee.Delete(context.Background(), []byte(`{}`)); env.Status != types.StatusError {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestModify(t *testing.T) {
	m := &MockTycho{}
	m.Impl.Modify = func(_ context.Context, req types.ModifyRequest) (*types.ModifyResult, error) {
		if req.Resources == nil || req.Resources.CPU != "500m" || req.Labels["tier"] != "gold" {
			t.Errorf("unexpected request: %+v", req)
		}
		return &types.ModifyResult{Patches: []map[string]any{}}, nil
	}
	testee, err := actions.New(m)
	if err != nil {
		t.Fatal(err)
	}

	env := testee.Modify(context.Background(), []byte(`{"tycho-guid": "abc", "labels": {"tier": "gold"}, "resources": {"cpu": "500m"}}`))
	if env.Status != types.StatusSuccess || env.Message != "Modified the system" {
		t.Errorf("unexpected envelope: %+v", env)
	}

	env = testee.Modify(context.Background(), []byte(`{"labels": {"tier": "gold"}}`))
	if env.Status != types.StatusError || env.Message != "Failed to modify system status." {
		t.Errorf("unexpected envelope: %+v", env)
	}
	if m.Called.Modify != 1 {
		t.Errorf("Modify is called %d times", m.Called.Modify)
	}
}
