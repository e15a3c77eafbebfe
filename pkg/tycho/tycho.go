// Package tycho binds requests to the compute backplane.
package tycho

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	dockerclient "github.com/docker/docker/client"
	"github.com/helxplatform/appstore/pkg/api/types"
	"github.com/helxplatform/appstore/pkg/compute"
	"github.com/helxplatform/appstore/pkg/compute/dockerc"
	"github.com/helxplatform/appstore/pkg/compute/kube"
	kconf "github.com/helxplatform/appstore/pkg/configs/tycho"
	xe "github.com/helxplatform/appstore/pkg/errors"
	"github.com/helxplatform/appstore/pkg/model"
	"github.com/helxplatform/appstore/pkg/templates"
	"github.com/helxplatform/appstore/pkg/utils/kubeutil"
	"github.com/labstack/gommon/log"
)

// Tycho parses requests into systems, and runs them on a Backend.
type Tycho struct {
	parser  *model.Parser
	backend compute.Backend
}

func New(parser *model.Parser, backend compute.Backend) *Tycho {
	return &Tycho{parser: parser, backend: backend}
}

func (t *Tycho) Start(ctx context.Context, req types.StartRequest) (*types.StartResult, error) {
	sys, err := t.parser.Parse(req)
	if err != nil {
		return nil, xe.NewStart(fmt.Sprintf("Unable to start system: %s", req.Name), err)
	}
	return t.backend.Start(ctx, sys)
}

func (t *Tycho) Status(ctx context.Context, req types.StatusRequest) ([]types.ServiceStatus, error) {
	return t.backend.Status(ctx, req)
}

func (t *Tycho) Delete(ctx context.Context, req types.DeleteRequest) error {
	return t.backend.Delete(ctx, req.Name)
}

func (t *Tycho) Modify(ctx context.Context, req types.ModifyRequest) (*types.ModifyResult, error) {
	m, err := t.parser.ParseModify(req)
	if err != nil {
		return nil, xe.NewModify(fmt.Sprintf("Failed to modify system: %s", req.GUID), err)
	}
	return t.backend.Modify(ctx, m)
}

// NewBackend connects to the backplane named in conf.
//
// For kubernetes, when TYCHO_ON_MINIKUBE is set and no node address is configured,
// the address is taken from `minikube ip`.
func NewBackend(ctx context.Context, conf *kconf.Config, environ kconf.Environ, logger *log.Logger) (compute.Backend, error) {
	switch b := conf.Backplane(); b {
	case kconf.BackplaneKubernetes:
		restConfig, clientset, err := kubeutil.Connect()
		if err != nil {
			return nil, xe.WrapWithNote("connecting kubernetes", err)
		}

		namespace := conf.Kube().Namespace()
		if namespace == "" {
			namespace = kubeutil.Namespace("default")
		}

		if environ.OnMinikube && conf.Kube().IP() == "" {
			ip, err := MinikubeIP(ctx)
			if err != nil {
				logger.Warnf("minikube ip is not available: %s", err)
			} else {
				conf = conf.WithKube(conf.Kube().WithIP(ip))
			}
		}

		renderer := templates.New(conf.TemplatePaths(), templates.WithLogger(logger))
		return kube.New(
			kube.WrapK8sClient(clientset), renderer, namespace, conf, environ,
			kube.WithForwarder(kube.NewForwarder(restConfig, logger)),
			kube.WithLogger(logger),
		), nil

	case kconf.BackplaneDockerCompose:
		cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
		if err != nil {
			return nil, xe.WrapWithNote("connecting docker engine", err)
		}
		return dockerc.New(conf.Docker(), cli, dockerc.WithLogger(logger)), nil

	default:
		return nil, fmt.Errorf("unsupported backplane: %s", b)
	}
}

// MinikubeIP runs `minikube ip`.
func MinikubeIP(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "minikube", "ip").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
