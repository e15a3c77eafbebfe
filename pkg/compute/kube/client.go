package kube

import (
	"context"

	kubeapps "k8s.io/api/apps/v1"
	kubecore "k8s.io/api/core/v1"
	kubenet "k8s.io/api/networking/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	kubetypes "k8s.io/apimachinery/pkg/types"
	k8s "k8s.io/client-go/kubernetes"
)

// subset of k8s.Clientset
type K8sClient interface {
	ListPVCs(ctx context.Context, namespace string) ([]kubecore.PersistentVolumeClaim, error)
	DeletePVCs(ctx context.Context, namespace string, ls LabelSelector) error

	GetService(ctx context.Context, namespace string, name string) (*kubecore.Service, error)
	CreateService(ctx context.Context, namespace string, svc *kubecore.Service) (*kubecore.Service, error)
	FindServices(ctx context.Context, namespace string, ls LabelSelector) ([]kubecore.Service, error)
	DeleteService(ctx context.Context, namespace string, name string) error

	GetSecret(ctx context.Context, namespace string, name string) (*kubecore.Secret, error)

	CreateDeployment(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error)
	FindDeployments(ctx context.Context, namespace string, ls LabelSelector) ([]kubeapps.Deployment, error)
	PatchDeployment(ctx context.Context, namespace string, name string, pt kubetypes.PatchType, data []byte) (*kubeapps.Deployment, error)
	DeleteDeployments(ctx context.Context, namespace string, ls LabelSelector) error

	DeleteReplicaSets(ctx context.Context, namespace string, ls LabelSelector) error

	FindPods(ctx context.Context, namespace string, ls LabelSelector) ([]kubecore.Pod, error)
	DeletePods(ctx context.Context, namespace string, ls LabelSelector) error

	CreateNetworkPolicy(ctx context.Context, namespace string, np *kubenet.NetworkPolicy) (*kubenet.NetworkPolicy, error)
	DeleteNetworkPolicies(ctx context.Context, namespace string, ls LabelSelector) error
}

// A wrapper for the type k8s.Clientset; because it does not prefer method chain-style invocations of that type.
type k8sClient struct {
	client *k8s.Clientset
}

// type check: k8sClient implements K8sClient
var _ K8sClient = &k8sClient{}

func WrapK8sClient(c *k8s.Clientset) K8sClient {
	return &k8sClient{client: c}
}

func listOptions(ls LabelSelector) kubeapimeta.ListOptions {
	return kubeapimeta.ListOptions{LabelSelector: ls.QueryString()}
}

func deleteOptions() kubeapimeta.DeleteOptions {
	background := kubeapimeta.DeletePropagationBackground
	return kubeapimeta.DeleteOptions{PropagationPolicy: &background}
}

func (k *k8sClient) ListPVCs(ctx context.Context, namespace string) ([]kubecore.PersistentVolumeClaim, error) {
	resp, err := k.client.CoreV1().PersistentVolumeClaims(namespace).List(ctx, kubeapimeta.ListOptions{})
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (k *k8sClient) DeletePVCs(ctx context.Context, namespace string, ls LabelSelector) error {
	return k.client.CoreV1().PersistentVolumeClaims(namespace).DeleteCollection(ctx, deleteOptions(), listOptions(ls))
}

func (k *k8sClient) GetService(ctx context.Context, namespace string, name string) (*kubecore.Service, error) {
	return k.client.CoreV1().Services(namespace).Get(ctx, name, kubeapimeta.GetOptions{})
}

func (k *k8sClient) CreateService(ctx context.Context, namespace string, svc *kubecore.Service) (*kubecore.Service, error) {
	return k.client.CoreV1().Services(namespace).Create(ctx, svc, kubeapimeta.CreateOptions{})
}

func (k *k8sClient) FindServices(ctx context.Context, namespace string, ls LabelSelector) ([]kubecore.Service, error) {
	resp, err := k.client.CoreV1().Services(namespace).List(ctx, listOptions(ls))
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (k *k8sClient) DeleteService(ctx context.Context, namespace string, name string) error {
	return k.client.CoreV1().Services(namespace).Delete(ctx, name, deleteOptions())
}

func (k *k8sClient) GetSecret(ctx context.Context, namespace string, name string) (*kubecore.Secret, error) {
	return k.client.CoreV1().Secrets(namespace).Get(ctx, name, kubeapimeta.GetOptions{})
}

func (k *k8sClient) CreateDeployment(ctx context.Context, namespace string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error) {
	return k.client.AppsV1().Deployments(namespace).Create(ctx, depl, kubeapimeta.CreateOptions{})
}

func (k *k8sClient) FindDeployments(ctx context.Context, namespace string, ls LabelSelector) ([]kubeapps.Deployment, error) {
	resp, err := k.client.AppsV1().Deployments(namespace).List(ctx, listOptions(ls))
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (k *k8sClient) PatchDeployment(ctx context.Context, namespace string, name string, pt kubetypes.PatchType, data []byte) (*kubeapps.Deployment, error) {
	return k.client.AppsV1().Deployments(namespace).Patch(ctx, name, pt, data, kubeapimeta.PatchOptions{})
}

func (k *k8sClient) DeleteDeployments(ctx context.Context, namespace string, ls LabelSelector) error {
	return k.client.AppsV1().Deployments(namespace).DeleteCollection(ctx, deleteOptions(), listOptions(ls))
}

func (k *k8sClient) DeleteReplicaSets(ctx context.Context, namespace string, ls LabelSelector) error {
	return k.client.AppsV1().ReplicaSets(namespace).DeleteCollection(ctx, deleteOptions(), listOptions(ls))
}

func (k *k8sClient) FindPods(ctx context.Context, namespace string, ls LabelSelector) ([]kubecore.Pod, error) {
	resp, err := k.client.CoreV1().Pods(namespace).List(ctx, listOptions(ls))
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (k *k8sClient) DeletePods(ctx context.Context, namespace string, ls LabelSelector) error {
	return k.client.CoreV1().Pods(namespace).DeleteCollection(ctx, deleteOptions(), listOptions(ls))
}

func (k *k8sClient) CreateNetworkPolicy(ctx context.Context, namespace string, np *kubenet.NetworkPolicy) (*kubenet.NetworkPolicy, error) {
	return k.client.NetworkingV1().NetworkPolicies(namespace).Create(ctx, np, kubeapimeta.CreateOptions{})
}

func (k *k8sClient) DeleteNetworkPolicies(ctx context.Context, namespace string, ls LabelSelector) error {
	return k.client.NetworkingV1().NetworkPolicies(namespace).DeleteCollection(ctx, deleteOptions(), listOptions(ls))
}
