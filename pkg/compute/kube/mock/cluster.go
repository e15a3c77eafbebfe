package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/helxplatform/appstore/pkg/compute/kube"
	kubeapps "k8s.io/api/apps/v1"
	kubecore "k8s.io/api/core/v1"
	kubenet "k8s.io/api/networking/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	kubetypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/strategicpatch"
)

// Cluster is an in-memory cluster, which keeps objects created via its MockClient.
//
// Namespaces are ignored.
// When a deployment is created, a running pod with the labels of its template is created too.
type Cluster struct {
	mu sync.Mutex

	PVCs            map[string]*kubecore.PersistentVolumeClaim
	Secrets         map[string]*kubecore.Secret
	Services        map[string]*kubecore.Service
	Deployments     map[string]*kubeapps.Deployment
	Pods            map[string]*kubecore.Pod
	NetworkPolicies map[string]*kubenet.NetworkPolicy

	// patches applied, in order
	Patches []Patch
}

type Patch struct {
	Name string
	Type kubetypes.PatchType
	Data []byte
}

// NewInMemory returns an empty Cluster and a MockClient operating on it.
//
// Impl of the MockClient can be replaced to inject failures.
func NewInMemory() (*Cluster, *MockClient) {
	c := &Cluster{
		PVCs:            map[string]*kubecore.PersistentVolumeClaim{},
		Secrets:         map[string]*kubecore.Secret{},
		Services:        map[string]*kubecore.Service{},
		Deployments:     map[string]*kubeapps.Deployment{},
		Pods:            map[string]*kubecore.Pod{},
		NetworkPolicies: map[string]*kubenet.NetworkPolicy{},
	}

	m := &MockClient{}
	m.Impl.ListPVCs = c.listPVCs
	m.Impl.DeletePVCs = c.deletePVCs
	m.Impl.GetService = c.getService
	m.Impl.CreateService = c.createService
	m.Impl.FindServices = c.findServices
	m.Impl.DeleteService = c.deleteService
	m.Impl.GetSecret = c.getSecret
	m.Impl.CreateDeployment = c.createDeployment
	m.Impl.FindDeployments = c.findDeployments
	m.Impl.PatchDeployment = c.patchDeployment
	m.Impl.DeleteDeployments = c.deleteDeployments
	m.Impl.DeleteReplicaSets = func(context.Context, string, kube.LabelSelector) error { return nil }
	m.Impl.FindPods = c.findPods
	m.Impl.DeletePods = c.deletePods
	m.Impl.CreateNetworkPolicy = c.createNetworkPolicy
	m.Impl.DeleteNetworkPolicies = c.deleteNetworkPolicies
	return c, m
}

// AddPVC puts a persistent volume claim into the cluster.
func (c *Cluster) AddPVC(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PVCs[name] = &kubecore.PersistentVolumeClaim{ObjectMeta: kubeapimeta.ObjectMeta{Name: name}}
}

// AddSecret puts a secret into the cluster.
func (c *Cluster) AddSecret(name string, data map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &kubecore.Secret{ObjectMeta: kubeapimeta.ObjectMeta{Name: name}, Data: map[string][]byte{}}
	for k, v := range data {
		s.Data[k] = []byte(v)
	}
	c.Secrets[name] = s
}

// AddService puts a service into the cluster.
func (c *Cluster) AddService(svc *kubecore.Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Services[svc.Name] = svc.DeepCopy()
}

// MarkReady makes all replicas of the deployment ready.
//
// Deployments are created with no ready replicas.
func (c *Cluster) MarkReady(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.Deployments[name]; ok {
		d.Status.ReadyReplicas = d.Status.Replicas
	}
}

// Labelled counts objects of any kind with the label.
func (c *Cluster) Labelled(label, value string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	count := func(meta kubeapimeta.ObjectMeta) {
		if v, ok := meta.Labels[label]; ok && v == value {
			n += 1
		}
	}
	for _, o := range c.Services {
		count(o.ObjectMeta)
	}
	for _, o := range c.Deployments {
		count(o.ObjectMeta)
	}
	for _, o := range c.Pods {
		count(o.ObjectMeta)
	}
	for _, o := range c.NetworkPolicies {
		count(o.ObjectMeta)
	}
	for _, o := range c.PVCs {
		count(o.ObjectMeta)
	}
	return n
}

func notFound(resource, name string) error {
	return kubeerr.NewNotFound(schema.GroupResource{Resource: resource}, name)
}

func alreadyExists(resource, name string) error {
	return kubeerr.NewAlreadyExists(schema.GroupResource{Resource: resource}, name)
}

// deleteMatched removes items of m matching ls.
func deleteMatched[T any](m map[string]T, ls kube.LabelSelector, meta func(T) kubeapimeta.ObjectMeta) {
	for k, v := range m {
		if ls.Matches(meta(v).Labels) {
			delete(m, k)
		}
	}
}

// findMatched lists items of m matching ls, sorted by name.
func findMatched[T any](m map[string]*T, ls kube.LabelSelector, meta func(*T) kubeapimeta.ObjectMeta) []T {
	names := []string{}
	for k, v := range m {
		if ls.Matches(meta(v).Labels) {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	found := make([]T, 0, len(names))
	for _, n := range names {
		found = append(found, *m[n])
	}
	return found
}

func (c *Cluster) listPVCs(_ context.Context, _ string) ([]kubecore.PersistentVolumeClaim, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return findMatched(c.PVCs, kube.LabelSelector{}, func(p *kubecore.PersistentVolumeClaim) kubeapimeta.ObjectMeta { return p.ObjectMeta }), nil
}

func (c *Cluster) deletePVCs(_ context.Context, _ string, ls kube.LabelSelector) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	deleteMatched(c.PVCs, ls, func(p *kubecore.PersistentVolumeClaim) kubeapimeta.ObjectMeta { return p.ObjectMeta })
	return nil
}

func (c *Cluster) getService(_ context.Context, _ string, name string) (*kubecore.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.Services[name]
	if !ok {
		return nil, notFound("services", name)
	}
	return s.DeepCopy(), nil
}

func (c *Cluster) createService(_ context.Context, _ string, svc *kubecore.Service) (*kubecore.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.Services[svc.Name]; ok {
		return nil, alreadyExists("services", svc.Name)
	}
	created := svc.DeepCopy()
	for i := range created.Spec.Ports {
		if created.Spec.Type == kubecore.ServiceTypeLoadBalancer || created.Spec.Type == kubecore.ServiceTypeNodePort {
			created.Spec.Ports[i].NodePort = 30000 + int32(len(c.Services))
		}
	}
	c.Services[svc.Name] = created
	return created.DeepCopy(), nil
}

func (c *Cluster) findServices(_ context.Context, _ string, ls kube.LabelSelector) ([]kubecore.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return findMatched(c.Services, ls, func(s *kubecore.Service) kubeapimeta.ObjectMeta { return s.ObjectMeta }), nil
}

func (c *Cluster) deleteService(_ context.Context, _ string, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.Services[name]; !ok {
		return notFound("services", name)
	}
	delete(c.Services, name)
	return nil
}

func (c *Cluster) getSecret(_ context.Context, _ string, name string) (*kubecore.Secret, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.Secrets[name]
	if !ok {
		return nil, notFound("secrets", name)
	}
	return s.DeepCopy(), nil
}

func (c *Cluster) createDeployment(_ context.Context, _ string, depl *kubeapps.Deployment) (*kubeapps.Deployment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.Deployments[depl.Name]; ok {
		return nil, alreadyExists("deployments", depl.Name)
	}
	created := depl.DeepCopy()
	created.UID = kubetypes.UID(fmt.Sprintf("uid-%s", depl.Name))
	created.CreationTimestamp = kubeapimeta.Now()
	created.Status.Replicas = 1
	c.Deployments[depl.Name] = created

	pod := &kubecore.Pod{
		ObjectMeta: *depl.Spec.Template.ObjectMeta.DeepCopy(),
		Spec:       *depl.Spec.Template.Spec.DeepCopy(),
		Status:     kubecore.PodStatus{Phase: kubecore.PodRunning},
	}
	pod.Name = depl.Name + "-pod"
	c.Pods[pod.Name] = pod

	return created.DeepCopy(), nil
}

func (c *Cluster) findDeployments(_ context.Context, _ string, ls kube.LabelSelector) ([]kubeapps.Deployment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return findMatched(c.Deployments, ls, func(d *kubeapps.Deployment) kubeapimeta.ObjectMeta { return d.ObjectMeta }), nil
}

func (c *Cluster) patchDeployment(_ context.Context, _ string, name string, pt kubetypes.PatchType, data []byte) (*kubeapps.Deployment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.Deployments[name]
	if !ok {
		return nil, notFound("deployments", name)
	}
	if pt != kubetypes.StrategicMergePatchType {
		return nil, fmt.Errorf("unsupported patch type: %s", pt)
	}

	original, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	patched, err := strategicpatch.StrategicMergePatch(original, data, kubeapps.Deployment{})
	if err != nil {
		return nil, kubeerr.NewBadRequest(err.Error())
	}
	result := new(kubeapps.Deployment)
	if err := json.Unmarshal(patched, result); err != nil {
		return nil, err
	}
	c.Deployments[name] = result
	c.Patches = append(c.Patches, Patch{Name: name, Type: pt, Data: data})
	return result.DeepCopy(), nil
}

func (c *Cluster) deleteDeployments(_ context.Context, _ string, ls kube.LabelSelector) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	deleteMatched(c.Deployments, ls, func(d *kubeapps.Deployment) kubeapimeta.ObjectMeta { return d.ObjectMeta })
	return nil
}

func (c *Cluster) findPods(_ context.Context, _ string, ls kube.LabelSelector) ([]kubecore.Pod, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return findMatched(c.Pods, ls, func(p *kubecore.Pod) kubeapimeta.ObjectMeta { return p.ObjectMeta }), nil
}

func (c *Cluster) deletePods(_ context.Context, _ string, ls kube.LabelSelector) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	deleteMatched(c.Pods, ls, func(p *kubecore.Pod) kubeapimeta.ObjectMeta { return p.ObjectMeta })
	return nil
}

func (c *Cluster) createNetworkPolicy(_ context.Context, _ string, np *kubenet.NetworkPolicy) (*kubenet.NetworkPolicy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.NetworkPolicies[np.Name]; ok {
		return nil, alreadyExists("networkpolicies", np.Name)
	}
	c.NetworkPolicies[np.Name] = np.DeepCopy()
	return np.DeepCopy(), nil
}

func (c *Cluster) deleteNetworkPolicies(_ context.Context, _ string, ls kube.LabelSelector) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	deleteMatched(c.NetworkPolicies, ls, func(n *kubenet.NetworkPolicy) kubeapimeta.ObjectMeta { return n.ObjectMeta })
	return nil
}
