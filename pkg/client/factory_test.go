package client_test

import (
	"context"
	"errors"
	"testing"

	"github.com/helxplatform/appstore/pkg/actions"
	"github.com/helxplatform/appstore/pkg/api/types"
	"github.com/helxplatform/appstore/pkg/client"
	"github.com/helxplatform/appstore/pkg/compute/kube/mock"
	kconf "github.com/helxplatform/appstore/pkg/configs/tycho"
	kubecore "k8s.io/api/core/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

func apiService(ingress ...kubecore.LoadBalancerIngress) *kubecore.Service {
	return &kubecore.Service{
		Spec: kubecore.ServiceSpec{
			Ports: []kubecore.ServicePort{{Port: 8099, NodePort: 30099}},
		},
		Status: kubecore.ServiceStatus{
			LoadBalancer: kubecore.LoadBalancerStatus{Ingress: ingress},
		},
	}
}

func TestClientFactory_Locate(t *testing.T) {
	minikube := func(ip string, err error) func(context.Context) (string, error) {
		return func(context.Context) (string, error) { return ip, err }
	}

	type when struct {
		service  *kubecore.Service
		minikube func(context.Context) (string, error)
	}

	for name, testcase := range map[string]struct {
		when when
		then string
	}{
		"load balancer ip": {
			when: when{service: apiService(kubecore.LoadBalancerIngress{IP: "203.0.113.7"})},
			then: "http://203.0.113.7:8099",
		},
		"load balancer hostname": {
			when: when{service: apiService(kubecore.LoadBalancerIngress{Hostname: "tycho.example.com"})},
			then: "http://tycho.example.com:8099",
		},
		"minikube node port": {
			when: when{service: apiService(), minikube: minikube("192.168.49.2", nil)},
			then: "http://192.168.49.2:30099",
		},
		"minikube gives garbage": {
			when: when{service: apiService(), minikube: minikube("not running", nil)},
			then: client.DefaultURL,
		},
		"minikube fails": {
			when: when{service: apiService(), minikube: minikube("", errors.New("no minikube"))},
			then: client.DefaultURL,
		},
		"no minikube": {
			when: when{service: apiService()},
			then: client.DefaultURL,
		},
		"service is not found": {
			when: when{},
			then: client.DefaultURL,
		},
	} {
		t.Run(name, func(t *testing.T) {
			k8s := &mock.MockClient{}
			k8s.Impl.GetService = func(_ context.Context, namespace string, name string) (*kubecore.Service, error) {
				if namespace != "helx" || name != client.DefaultServiceName {
					t.Errorf("unexpected service: %s/%s", namespace, name)
				}
				if testcase.when.service == nil {
					return nil, kubeerr.NewNotFound(schema.GroupResource{Resource: "services"}, name)
				}
				return testcase.when.service, nil
			}

			opts := []client.FactoryOption{}
			if testcase.when.minikube != nil {
				opts = append(opts, client.WithMinikube(testcase.when.minikube))
			}
			testee := client.NewClientFactory(k8s, "helx", opts...)

			if actual := testee.Locate(context.Background(), client.DefaultServiceName, client.DefaultURL); actual != testcase.then {
				t.Errorf("(actual, expected) = (%s, %s)", actual, testcase.then)
			}
		})
	}
}

// stubTycho deletes everything and starts nothing.
type stubTycho struct{}

func (stubTycho) Start(context.Context, types.StartRequest) (*types.StartResult, error) {
	return nil, errors.New("not supported")
}

func (stubTycho) Status(_ context.Context, req types.StatusRequest) ([]types.ServiceStatus, error) {
	return []types.ServiceStatus{{Name: "x-" + req.Name, SID: req.Name}}, nil
}

func (stubTycho) Delete(context.Context, types.DeleteRequest) error {
	return nil
}

func (stubTycho) Modify(context.Context, types.ModifyRequest) (*types.ModifyResult, error) {
	return &types.ModifyResult{}, nil
}

func TestSelect(t *testing.T) {
	resources, err := actions.New(stubTycho{})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("without REST_API, requests are handled in this process", func(t *testing.T) {
		environ := kconf.DefaultEnviron()
		testee := client.Select(context.Background(), environ, resources, nil)

		status, err := testee.Status(context.Background(), types.StatusRequest{Name: "abc"})
		if err != nil {
			t.Fatal(err)
		}
		if len(status.Services) != 1 || status.Services[0].Identifier != "abc" {
			t.Errorf("unexpected status: %+v", status)
		}
		if err := testee.Delete(context.Background(), types.DeleteRequest{Name: "abc"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("local requests are validated", func(t *testing.T) {
		testee := client.New(client.NewLocal(resources))
		if err := testee.Delete(context.Background(), types.DeleteRequest{}); err == nil {
			t.Error("expected error, but got nil")
		}
	})
}
