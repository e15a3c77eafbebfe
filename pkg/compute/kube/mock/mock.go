package mock

import (
	"context"
	"errors"

	"github.com/helxplatform/appstore/pkg/compute/kube"
	kubeapps "k8s.io/api/apps/v1"
	kubecore "k8s.io/api/core/v1"
	kubenet "k8s.io/api/networking/v1"
	kubetypes "k8s.io/apimachinery/pkg/types"
)

type MockClient struct {
	Impl struct {
		ListPVCs   func(ctx context.Context, namespace string) ([]kubecore.PersistentVolumeClaim, error)
		DeletePVCs func(ctx context.Context, namespace string, ls kube.LabelSelector) error

		GetService    func(ctx context.Context, namespace string, name string) (*kubecore.Service, error)
		CreateService func(ctx context.Context, namespace string, svc *kubecore.Service) (*kubecore.Service, error)
		FindServices  func(ctx context.Context, namespace string, ls kube.LabelSelector) ([]kubecore.Service, error)
		DeleteService func(ctx context.Context, namespace string, name string) error

		GetSecret func(ctx context.Context, namespace string, name string) (*kubecore.Secret, error)

		CreateDeployment  func(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error)
		FindDeployments   func(ctx context.Context, namespace string, ls kube.LabelSelector) ([]kubeapps.Deployment, error)
		PatchDeployment   func(ctx context.Context, namespace string, name string, pt kubetypes.PatchType, data []byte) (*kubeapps.Deployment, error)
		DeleteDeployments func(ctx context.Context, namespace string, ls kube.LabelSelector) error

		DeleteReplicaSets func(ctx context.Context, namespace string, ls kube.LabelSelector) error

		FindPods   func(ctx context.Context, namespace string, ls kube.LabelSelector) ([]kubecore.Pod, error)
		DeletePods func(ctx context.Context, namespace string, ls kube.LabelSelector) error

		CreateNetworkPolicy   func(ctx context.Context, namespace string, np *kubenet.NetworkPolicy) (*kubenet.NetworkPolicy, error)
		DeleteNetworkPolicies func(ctx context.Context, namespace string, ls kube.LabelSelector) error
	}
	Called struct {
		ListPVCs   uint64
		DeletePVCs uint64

		GetService    uint64
		CreateService uint64
		FindServices  uint64
		DeleteService uint64

		GetSecret uint64

		CreateDeployment  uint64
		FindDeployments   uint64
		PatchDeployment   uint64
		DeleteDeployments uint64

		DeleteReplicaSets uint64

		FindPods   uint64
		DeletePods uint64

		CreateNetworkPolicy   uint64
		DeleteNetworkPolicies uint64
	}
}

// MockClient implements kube.K8sClient
var _ kube.K8sClient = &MockClient{}

func (m *MockClient) ListPVCs(ctx context.Context, namespace string) ([]kubecore.PersistentVolumeClaim, error) {
	m.Called.ListPVCs += 1
	if m.Impl.ListPVCs == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.ListPVCs(ctx, namespace)
}
func (m *MockClient) DeletePVCs(ctx context.Context, namespace string, ls kube.LabelSelector) error {
	m.Called.DeletePVCs += 1
	if m.Impl.DeletePVCs == nil {
		return errors.New("[MOCK] not implemented")
	}
	return m.Impl.DeletePVCs(ctx, namespace, ls)
}
func (m *MockClient) GetService(ctx context.Context, namespace string, name string) (*kubecore.Service, error) {
	m.Called.GetService += 1
	if m.Impl.GetService == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.GetService(ctx, namespace, name)
}
func (m *MockClient) CreateService(ctx context.Context, namespace string, svc *kubecore.Service) (*kubecore.Service, error) {
	m.Called.CreateService += 1
	if m.Impl.CreateService == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.CreateService(ctx, namespace, svc)
}
func (m *MockClient) FindServices(ctx context.Context, namespace string, ls kube.LabelSelector) ([]kubecore.Service, error) {
	m.Called.FindServices += 1
	if m.Impl.FindServices == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.FindServices(ctx, namespace, ls)
}
func (m *MockClient) DeleteService(ctx context.Context, namespace string, name string) error {
	m.Called.DeleteService += 1
	if m.Impl.DeleteService == nil {
		return errors.New("[MOCK] not implemented")
	}
	return m.Impl.DeleteService(ctx, namespace, name)
}
func (m *MockClient) GetSecret(ctx context.Context, namespace string, name string) (*kubecore.Secret, error) {
	m.Called.GetSecret += 1
	if m.Impl.GetSecret == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.GetSecret(ctx, namespace, name)
}
func (m *MockClient) CreateDeployment(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error) {
	m.Called.CreateDeployment += 1
	if m.Impl.CreateDeployment == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.CreateDeployment(ctx, namespace, depl)
}
func (m *MockClient) FindDeployments(ctx context.Context, namespace string, ls kube.LabelSelector) ([]kubeapps.Deployment, error) {
	m.Called.FindDeployments += 1
	if m.Impl.FindDeployments == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.FindDeployments(ctx, namespace, ls)
}
func (m *MockClient) PatchDeployment(ctx context.Context, namespace string, name string, pt kubetypes.PatchType, data []byte) (*kubeapps.Deployment, error) {
	m.Called.PatchDeployment += 1
	if m.Impl.PatchDeployment == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.PatchDeployment(ctx, namespace, name, pt, data)
}
func (m *MockClient) DeleteDeployments(ctx context.Context, namespace string, ls kube.LabelSelector) error {
	m.Called.DeleteDeployments += 1
	if m.Impl.DeleteDeployments == nil {
		return errors.New("[MOCK] not implemented")
	}
	return m.Impl.DeleteDeployments(ctx, namespace, ls)
}
func (m *MockClient) DeleteReplicaSets(ctx context.Context, namespace string, ls kube.LabelSelector) error {
	m.Called.DeleteReplicaSets += 1
	if m.Impl.DeleteReplicaSets == nil {
		return errors.New("[MOCK] not implemented")
	}
	return m.Impl.DeleteReplicaSets(ctx, namespace, ls)
}
func (m *MockClient) FindPods(ctx context.Context, namespace string, ls kube.LabelSelector) ([]kubecore.Pod, error) {
	m.Called.FindPods += 1
	if m.Impl.FindPods == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.FindPods(ctx, namespace, ls)
}
func (m *MockClient) DeletePods(ctx context.Context, namespace string, ls kube.LabelSelector) error {
	m.Called.DeletePods += 1
	if m.Impl.DeletePods == nil {
		return errors.New("[MOCK] not implemented")
	}
	return m.Impl.DeletePods(ctx, namespace, ls)
}
func (m *MockClient) CreateNetworkPolicy(ctx context.Context, namespace string, np *kubenet.NetworkPolicy) (*kubenet.NetworkPolicy, error) {
	m.Called.CreateNetworkPolicy += 1
	if m.Impl.CreateNetworkPolicy == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.CreateNetworkPolicy(ctx, namespace, np)
}
func (m *MockClient) DeleteNetworkPolicies(ctx context.Context, namespace string, ls kube.LabelSelector) error {
	m.Called.DeleteNetworkPolicies += 1
	if m.Impl.DeleteNetworkPolicies == nil {
		return errors.New("[MOCK] not implemented")
	}
	return m.Impl.DeleteNetworkPolicies(ctx, namespace, ls)
}
