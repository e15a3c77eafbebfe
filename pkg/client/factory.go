package client

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"

	"github.com/helxplatform/appstore/pkg/actions"
	kconf "github.com/helxplatform/appstore/pkg/configs/tycho"
	"github.com/labstack/gommon/log"
	kubecore "k8s.io/api/core/v1"
)

const (
	DefaultServiceName = "tycho-api"
	DefaultURL         = "http://localhost:5000"
)

// ServiceGetter reads Services. kube.K8sClient is one.
type ServiceGetter interface {
	GetService(ctx context.Context, namespace string, name string) (*kubecore.Service, error)
}

// ClientFactory locates the tycho API in a cluster.
type ClientFactory struct {
	services   ServiceGetter
	namespace  string
	minikubeIP func(context.Context) (string, error)
	httpclient *http.Client
	log        *log.Logger
}

type FactoryOption func(*ClientFactory) *ClientFactory

// WithMinikube sets how to get the minikube node address. Without this, minikube is not tried.
func WithMinikube(ip func(context.Context) (string, error)) FactoryOption {
	return func(f *ClientFactory) *ClientFactory {
		f.minikubeIP = ip
		return f
	}
}

func WithHTTPClient(hc *http.Client) FactoryOption {
	return func(f *ClientFactory) *ClientFactory {
		f.httpclient = hc
		return f
	}
}

func WithFactoryLogger(l *log.Logger) FactoryOption {
	return func(f *ClientFactory) *ClientFactory {
		f.log = l
		return f
	}
}

func NewClientFactory(services ServiceGetter, namespace string, opts ...FactoryOption) *ClientFactory {
	f := &ClientFactory{services: services, namespace: namespace, log: log.New("client")}
	for _, o := range opts {
		f = o(f)
	}
	return f
}

// Locate finds the URL of the API service name.
//
// It tries the load balancer ingress of the service, then minikube ip with the node port.
// When nothing is found, it returns defaultURL.
func (f *ClientFactory) Locate(ctx context.Context, name string, defaultURL string) string {
	svc, err := f.services.GetService(ctx, f.namespace, name)
	if err != nil || svc == nil {
		f.log.Infof("cannot find %s in namespace %s", name, f.namespace)
		return defaultURL
	}
	if len(svc.Spec.Ports) == 0 {
		return defaultURL
	}
	port := svc.Spec.Ports[0]

	for _, ingress := range svc.Status.LoadBalancer.Ingress {
		host := ingress.IP
		if host == "" {
			host = ingress.Hostname
		}
		if host != "" {
			f.log.Debugf("located tycho api instance in kube")
			return urlOf(host, port.Port)
		}
	}

	if f.minikubeIP != nil && port.NodePort != 0 {
		f.log.Debugf("looking in minikube for a node port based service.")
		ip, err := f.minikubeIP(ctx)
		if err != nil {
			f.log.Errorf("unable to get minikube ip address: %s", err)
		} else if _, err := netip.ParseAddr(ip); err != nil {
			f.log.Errorf("unable to get minikube ip address: %s", err)
		} else {
			f.log.Infof("configuring minikube ip: %s", ip)
			return urlOf(ip, port.NodePort)
		}
	}
	return defaultURL
}

// GetClient creates a Client over HTTP to the API service located with Locate.
func (f *ClientFactory) GetClient(ctx context.Context, name string, defaultURL string, opts ...Option) *Client {
	url := f.Locate(ctx, name, defaultURL)
	f.log.Infof("creating tycho client with url: %s", url)
	return New(NewHTTP(url, f.httpclient), opts...)
}

func urlOf(host string, port int32) string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(int(port))))
}

// Select creates a Client as environ says.
//
// With REST_API, requests go to the API server: located by factory when it is given, or at TYCHO_URL.
// Otherwise, they are handled by local in this process.
func Select(ctx context.Context, environ kconf.Environ, local *actions.Resources, factory *ClientFactory, opts ...Option) *Client {
	if !environ.RestAPI {
		return New(NewLocal(local), opts...)
	}
	if factory != nil {
		return factory.GetClient(ctx, DefaultServiceName, environ.TychoURL, opts...)
	}
	return New(NewHTTP(environ.TychoURL, nil), opts...)
}
