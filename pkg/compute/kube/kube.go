// Package kube runs systems on Kubernetes.
//
// A system is a Deployment with Services per container, and optionally
// a NetworkPolicy. Every object of a system is labelled with
// tycho-guid=<identifier>, which is how systems are found and deleted.
package kube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/helxplatform/appstore/pkg/api/types"
	"github.com/helxplatform/appstore/pkg/compute"
	kconf "github.com/helxplatform/appstore/pkg/configs/tycho"
	xe "github.com/helxplatform/appstore/pkg/errors"
	"github.com/helxplatform/appstore/pkg/model"
	"github.com/helxplatform/appstore/pkg/templates"
	"github.com/helxplatform/appstore/pkg/utils/retry"
	"github.com/labstack/gommon/log"
	kubeapps "k8s.io/api/apps/v1"
	kubecore "k8s.io/api/core/v1"
	kubenet "k8s.io/api/networking/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	kubetypes "k8s.io/apimachinery/pkg/types"
)

const (
	podTemplate           = "pod.yaml"
	serviceTemplate       = "service.yaml"
	networkPolicyTemplate = "policy/tycho-default-netpolicy.yaml"
	patchTemplate         = "patch.yaml"
)

const localhost = "127.0.0.1"

type Compute struct {
	client        K8sClient
	templates     *templates.Renderer
	namespace     string
	conf          *kconf.KubeConfig
	strictVolumes bool
	environ       kconf.Environ
	forwarder     Forwarder
	forwards      *forwards
	pollInterval  time.Duration
	log           *log.Logger
}

// type check: Compute is a Backend
var _ compute.Backend = &Compute{}

type Option func(*Compute) *Compute

// WithForwarder enables port forwarding to systems without load balancers.
func WithForwarder(f Forwarder) Option {
	return func(c *Compute) *Compute {
		c.forwarder = f
		return c
	}
}

// WithPollInterval sets interval of polling load balancers and pods.
func WithPollInterval(d time.Duration) Option {
	return func(c *Compute) *Compute {
		c.pollInterval = d
		return c
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Compute) *Compute {
		c.log = l
		return c
	}
}

// New creates Compute running systems in namespace.
func New(
	client K8sClient,
	renderer *templates.Renderer,
	namespace string,
	conf *kconf.Config,
	environ kconf.Environ,
	opts ...Option,
) *Compute {
	c := &Compute{
		client:        client,
		templates:     renderer,
		namespace:     namespace,
		conf:          conf.Kube(),
		strictVolumes: conf.StrictVolumes(),
		environ:       environ,
		forwards:      &forwards{},
		pollInterval:  time.Second,
		log:           log.New("kube"),
	}
	for _, o := range opts {
		c = o(c)
	}
	return c
}

// Start launches system.
//
// When it fails, objects labelled with the identifier of the system are
// deleted, even if ctx is canceled.
func (c *Compute) Start(ctx context.Context, system *model.System) (*types.StartResult, error) {
	result, err := c.start(ctx, system)
	if err == nil {
		c.log.Infof("system %s is started", system.Name)
		return result, nil
	}

	c.log.Errorf("failed to start system %s: %s", system.Name, err)
	if derr := c.Delete(context.WithoutCancel(ctx), system.Identifier); derr != nil {
		c.log.Errorf("failed to clean up system %s: %s", system.Name, derr)
	}
	return nil, xe.NewStart(fmt.Sprintf("Unable to start system: %s", system.Name), err)
}

func (c *Compute) start(ctx context.Context, system *model.System) (*types.StartResult, error) {
	missing, err := c.missingClaims(ctx, system)
	if err != nil {
		return nil, err
	}

	ambassador, err := c.hasAmbassador(ctx)
	if err != nil {
		return nil, err
	}

	env := c.secretEnv(ctx, system)

	var systemPort int32
	if main, ok := system.Container(system.SystemName); ok {
		systemPort, _ = main.FirstPort()
	}

	derived := system.Derive(
		model.WithoutVolumes(missing...),
		model.WithAmbassador(ambassador),
		model.WithExtraEnv(env),
		model.WithSystemPort(systemPort),
	)

	depl, err := c.deployment(derived)
	if err != nil {
		return nil, err
	}
	created, err := c.client.CreateDeployment(ctx, c.namespace, depl)
	if err != nil {
		return nil, xe.WrapWithNote("creating deployment", err)
	}
	c.log.Debugf("deployment %s is created", created.Name)

	if derived.RequiresNetworkPolicy() {
		np, err := c.networkPolicy(derived)
		if err != nil {
			return nil, err
		}
		if _, err := c.client.CreateNetworkPolicy(ctx, c.namespace, np); err != nil {
			return nil, xe.WrapWithNote("creating network policy", err)
		}
	}

	containers := map[string]types.Endpoint{}
	for _, ct := range derived.Containers {
		svcdef, ok := derived.Services[ct.Name]
		if !ok {
			continue
		}
		svc, err := c.service(derived, svcdef, created)
		if err != nil {
			return nil, err
		}
		createdSvc, err := c.client.CreateService(ctx, c.namespace, svc)
		if err != nil {
			return nil, xe.WrapWithNote("creating service "+svc.Name, err)
		}
		ep, err := c.endpoint(ctx, derived, createdSvc)
		if err != nil {
			return nil, err
		}
		containers[ct.Name] = ep
	}

	return &types.StartResult{
		Name:       derived.Name,
		SID:        derived.Identifier,
		Containers: containers,
		ConnString: derived.ConnString,
	}, nil
}

// missingClaims finds persistent volume claims used in system but not in the cluster.
//
// The shared claim is assumed to be always there.
// When strictVolumes is set, a missing claim is an error.
func (c *Compute) missingClaims(ctx context.Context, system *model.System) ([]string, error) {
	if len(system.Volumes) == 0 {
		return nil, nil
	}
	pvcs, err := c.client.ListPVCs(ctx, c.namespace)
	if err != nil {
		return nil, xe.WrapWithNote("listing persistent volume claims", err)
	}
	exists := map[string]struct{}{}
	for _, p := range pvcs {
		exists[p.Name] = struct{}{}
	}

	missing := []string{}
	for _, v := range system.Volumes {
		if v.PVCName == "" || v.VolumeName == c.environ.StdNFSPVC {
			continue
		}
		if _, ok := exists[v.VolumeName]; ok {
			continue
		}
		if c.strictVolumes {
			return nil, fmt.Errorf("persistent volume claim %s is not found", v.VolumeName)
		}
		c.log.Warnf("persistent volume claim %s is not found. volumes on it are dropped.", v.VolumeName)
		missing = append(missing, v.VolumeName)
	}
	return missing, nil
}

func (c *Compute) hasAmbassador(ctx context.Context) (bool, error) {
	_, err := c.client.GetService(ctx, c.namespace, c.conf.Ambassador())
	if err == nil {
		return true, nil
	}
	if kubeerr.IsNotFound(err) {
		return false, nil
	}
	return false, xe.WrapWithNote("looking for ambassador", err)
}

// secretEnv reads the secret "{system name}-env" as env vars for every container.
func (c *Compute) secretEnv(ctx context.Context, system *model.System) []model.EnvVar {
	name := system.SystemName + "-env"
	secret, err := c.client.GetSecret(ctx, c.namespace, name)
	if err != nil {
		if !kubeerr.IsNotFound(err) {
			c.log.Warnf("secret %s can not be read: %s", name, err)
		}
		return nil
	}

	vars := map[string]any{
		"system":      system,
		"identifier":  system.Identifier,
		"username":    system.Username,
		"system_name": system.SystemName,
	}
	keys := make([]string, 0, len(secret.Data))
	for k := range secret.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]model.EnvVar, 0, len(keys))
	for _, k := range keys {
		v, err := templates.RenderString(string(secret.Data[k]), vars)
		if err != nil {
			c.log.Warnf("secret %s: value of %s can not be rendered: %s", name, k, err)
			v = string(secret.Data[k])
		}
		env = append(env, model.EnvVar{Name: k, Value: v})
	}
	return env
}

func (c *Compute) deployment(system *model.System) (*kubeapps.Deployment, error) {
	doc, err := c.render(podTemplate, map[string]any{"system": system})
	if err != nil {
		return nil, err
	}
	pod, err := decode[kubecore.Pod](doc)
	if err != nil {
		return nil, xe.WrapWithNote(podTemplate, err)
	}

	selector := map[string]string{
		LabelGUID:     system.Identifier,
		LabelUsername: system.Username,
	}
	if pod.Labels == nil {
		pod.Labels = map[string]string{}
	}
	for k, v := range selector {
		pod.Labels[k] = v
	}

	replicas := int32(1)
	return &kubeapps.Deployment{
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name: system.Name,
			Labels: map[string]string{
				LabelGUID:     system.Identifier,
				LabelExecutor: ExecutorTycho,
				LabelUsername: system.Username,
			},
		},
		Spec: kubeapps.DeploymentSpec{
			Replicas: &replicas,
			Selector: &kubeapimeta.LabelSelector{MatchLabels: selector},
			Template: kubecore.PodTemplateSpec{
				ObjectMeta: kubeapimeta.ObjectMeta{
					Labels:      pod.Labels,
					Annotations: pod.Annotations,
				},
				Spec: pod.Spec,
			},
		},
	}, nil
}

func (c *Compute) networkPolicy(system *model.System) (*kubenet.NetworkPolicy, error) {
	doc, err := c.render(networkPolicyTemplate, map[string]any{"system": system})
	if err != nil {
		return nil, err
	}
	np, err := decode[kubenet.NetworkPolicy](doc)
	if err != nil {
		return nil, xe.WrapWithNote(networkPolicyTemplate, err)
	}
	if np.Labels == nil {
		np.Labels = map[string]string{}
	}
	np.Labels[LabelGUID] = system.Identifier
	return np, nil
}

func (c *Compute) service(system *model.System, svcdef model.Service, owner *kubeapps.Deployment) (*kubecore.Service, error) {
	doc, err := c.render(serviceTemplate, map[string]any{
		"system":                         system,
		"service":                        svcdef,
		"create_deployment_api_response": owner,
	})
	if err != nil {
		return nil, err
	}
	svc, err := decode[kubecore.Service](doc)
	if err != nil {
		return nil, xe.WrapWithNote(serviceTemplate, err)
	}
	if svc.Labels == nil {
		svc.Labels = map[string]string{}
	}
	svc.Labels[LabelGUID] = system.Identifier
	svc.OwnerReferences = append(svc.OwnerReferences, kubeapimeta.OwnerReference{
		APIVersion: "apps/v1",
		Kind:       "Deployment",
		Name:       owner.Name,
		UID:        owner.UID,
	})
	return svc, nil
}

// endpoint finds where svc is reachable.
//
// Services behind ambassador have no address.
func (c *Compute) endpoint(ctx context.Context, system *model.System, svc *kubecore.Service) (types.Endpoint, error) {
	ep := types.Endpoint{Ports: map[string]int32{}}
	if len(svc.Spec.Ports) == 0 {
		return ep, nil
	}
	p := svc.Spec.Ports[0]
	port := p.NodePort
	if port == 0 {
		port = p.Port
	}
	ep.Ports[p.Name] = port

	if system.Ambassador {
		return ep, nil
	}

	ip, local, err := c.resolveIP(ctx, system, svc)
	if err != nil {
		return types.Endpoint{}, err
	}
	ep.IPAddress = ip
	if local != 0 {
		ep.Ports[p.Name] = local
	}
	return ep, nil
}

// resolveIP tries, in order, a load balancer ingress, the configured node address
// and port forwarding.
//
// When port forwarding is used, the local port is returned too.
func (c *Compute) resolveIP(ctx context.Context, system *model.System, svc *kubecore.Service) (*string, int32, error) {
	if c.environ.IsTest() {
		ip := localhost
		return &ip, 0, nil
	}

	if wait := c.conf.LoadBalancerWait(); 0 < wait {
		pctx, cancel := context.WithTimeout(ctx, wait)
		addr, err := retry.Blocking(pctx, retry.StaticBackoff(c.pollInterval), func() (string, error) {
			s, err := c.client.GetService(pctx, c.namespace, svc.Name)
			if err != nil {
				return "", err
			}
			for _, ing := range s.Status.LoadBalancer.Ingress {
				if ing.IP != "" {
					return ing.IP, nil
				}
				if ing.Hostname != "" {
					return ing.Hostname, nil
				}
			}
			return "", retry.ErrRetry
		})
		cancel()
		switch {
		case err == nil:
			return &addr, 0, nil
		case ctx.Err() != nil:
			return nil, 0, ctx.Err()
		case !errors.Is(err, context.DeadlineExceeded):
			return nil, 0, xe.WrapWithNote("waiting for load balancer of "+svc.Name, err)
		}
		c.log.Infof("service %s has no load balancer ingress.", svc.Name)
	}

	if ip := c.conf.IP(); ip != "" {
		return &ip, 0, nil
	}

	if c.forwarder == nil {
		return nil, 0, nil
	}
	local, err := c.forwards.open(svc.Name, func() (uint16, func(), error) {
		return c.forward(ctx, system, svc)
	})
	if err != nil {
		c.log.Warnf("service %s can not be forwarded: %s", svc.Name, err)
		return nil, 0, nil
	}
	ip := localhost
	return &ip, int32(local), nil
}

func (c *Compute) forward(ctx context.Context, system *model.System, svc *kubecore.Service) (uint16, func(), error) {
	wctx, cancel := context.WithTimeout(ctx, max(c.conf.LoadBalancerWait(), c.pollInterval))
	defer cancel()

	pod, err := retry.Blocking(wctx, retry.StaticBackoff(c.pollInterval), func() (string, error) {
		pods, err := c.client.FindPods(wctx, c.namespace, LabelSelector{LabelGUID: Eq(system.Identifier)})
		if err != nil {
			return "", err
		}
		for _, p := range pods {
			if p.Status.Phase == kubecore.PodRunning {
				return p.Name, nil
			}
		}
		return "", retry.ErrRetry
	})
	if err != nil {
		return 0, nil, err
	}

	target := svc.Spec.Ports[0].TargetPort.IntValue()
	if target == 0 {
		target = int(svc.Spec.Ports[0].Port)
	}
	return c.forwarder.Forward(ctx, c.namespace, pod, int32(target))
}

// Status lists systems.
//
// The name selects the system by its guid. Without a name, the username selects
// systems of the user. Without both, all systems are listed.
func (c *Compute) Status(ctx context.Context, req types.StatusRequest) ([]types.ServiceStatus, error) {
	var selector LabelSelector
	switch {
	case req.Name != "":
		selector = LabelSelector{LabelGUID: Eq(req.Name)}
	case req.Username != "":
		selector = LabelSelector{LabelUsername: Eq(req.Username)}
	default:
		selector = LabelSelector{LabelExecutor: Eq(ExecutorTycho)}
	}

	deps, err := c.client.FindDeployments(ctx, c.namespace, selector)
	if err != nil {
		return nil, xe.NewTycho("Failed to get system status.", err)
	}

	rows := make([]types.ServiceStatus, 0, len(deps))
	for _, d := range deps {
		rows = append(rows, statusOf(d))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows, nil
}

func statusOf(d kubeapps.Deployment) types.ServiceStatus {
	utilization := map[string]map[string]string{}
	for _, ct := range d.Spec.Template.Spec.Containers {
		limits := map[string]string{}
		for name, q := range ct.Resources.Limits {
			limits[string(name)] = q.String()
		}
		utilization[ct.Name] = limits
	}

	desired := int32(1)
	if d.Spec.Replicas != nil {
		desired = *d.Spec.Replicas
	}

	return types.ServiceStatus{
		Name:          d.Name,
		AppID:         d.Spec.Template.Labels[LabelOriginalApp],
		SID:           d.Labels[LabelGUID],
		IPAddress:     localhost,
		Port:          "80",
		CreationTime:  creationTime(d.CreationTimestamp.Time),
		Username:      d.Labels[LabelUsername],
		Utilization:   utilization,
		WorkspaceName: d.Spec.Template.Labels[LabelAppName],
		IsReady:       0 < desired && d.Status.ReadyReplicas == desired,
	}
}

// creationTime formats t as "M-D-YYYY H:M:S", without zero padding.
func creationTime(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf(
		"%d-%d-%d %d:%d:%d",
		t.Month(), t.Day(), t.Year(), t.Hour(), t.Minute(), t.Second(),
	)
}

// Delete removes objects labelled with tycho-guid=name.
func (c *Compute) Delete(ctx context.Context, name string) error {
	selector := LabelSelector{LabelGUID: Eq(name)}

	errs := []error{}
	for what, del := range map[string]func(context.Context, string, LabelSelector) error{
		"deployments":      c.client.DeleteDeployments,
		"replicasets":      c.client.DeleteReplicaSets,
		"pods":             c.client.DeletePods,
		"pvcs":             c.client.DeletePVCs,
		"network policies": c.client.DeleteNetworkPolicies,
	} {
		if err := del(ctx, c.namespace, selector); err != nil && !kubeerr.IsNotFound(err) {
			errs = append(errs, xe.WrapWithNote("deleting "+what, err))
		}
	}

	svcs, err := c.client.FindServices(ctx, c.namespace, selector)
	if err != nil {
		errs = append(errs, xe.WrapWithNote("listing services", err))
	}
	for _, s := range svcs {
		if err := c.client.DeleteService(ctx, c.namespace, s.Name); err != nil && !kubeerr.IsNotFound(err) {
			errs = append(errs, xe.WrapWithNote("deleting service "+s.Name, err))
		}
	}

	c.forwards.close(func(key string) bool { return strings.HasSuffix(key, "-"+name) })

	if len(errs) != 0 {
		return xe.NewDelete(fmt.Sprintf("Failed to delete system: %s", name), errors.Join(errs...))
	}
	c.log.Infof("system %s is deleted", name)
	return nil
}

// Modify patches deployments of a system.
func (c *Compute) Modify(ctx context.Context, m *model.ModifySystem) (*types.ModifyResult, error) {
	failed := func(err error) error {
		return xe.NewModify(fmt.Sprintf("Failed to modify system: %s", m.GUID), err)
	}

	deps, err := c.client.FindDeployments(ctx, c.namespace, LabelSelector{LabelGUID: Eq(m.GUID)})
	if err != nil {
		return nil, failed(err)
	}
	if len(deps) == 0 {
		return nil, failed(errors.New("No deployments found. Specify a valid GUID."))
	}

	result := &types.ModifyResult{Patches: []map[string]any{}}
	if !m.Patch {
		return result, nil
	}

	for _, d := range deps {
		names := make([]string, 0, len(d.Spec.Template.Spec.Containers))
		for _, ct := range d.Spec.Template.Spec.Containers {
			names = append(names, ct.Name)
		}
		patch, err := c.render(patchTemplate, map[string]any{
			"system_modify": m,
			"containers":    names,
		})
		if err != nil {
			return nil, failed(err)
		}
		data, err := json.Marshal(patch)
		if err != nil {
			return nil, failed(err)
		}
		if _, err := c.client.PatchDeployment(ctx, c.namespace, d.Name, kubetypes.StrategicMergePatchType, data); err != nil {
			return nil, failed(err)
		}
		result.Patches = append(result.Patches, patch)
	}
	return result, nil
}

// render renders a template, and takes its first document.
func (c *Compute) render(name string, vars map[string]any) (map[string]any, error) {
	docs, err := c.templates.Render(name, vars)
	if err != nil {
		return nil, err
	}
	doc, err := docs.First()
	if err != nil {
		return nil, xe.WrapWithNote(name, err)
	}
	c.log.Debugf("rendered %s: %v", name, doc)
	return doc, nil
}

// decode converts a document into a typed kubernetes object.
func decode[T any](doc map[string]any) (*T, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	obj := new(T)
	if err := json.Unmarshal(b, obj); err != nil {
		return nil, err
	}
	return obj, nil
}
