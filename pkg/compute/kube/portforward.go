package kube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/labstack/gommon/log"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"
)

// Forwarder opens a port on this host, forwarding to a pod.
type Forwarder interface {
	// Forward starts forwarding, and returns the local port and
	// a function to stop forwarding.
	Forward(ctx context.Context, namespace string, pod string, port int32) (local uint16, stop func(), err error)
}

type spdyForwarder struct {
	config *rest.Config
	log    *log.Logger
}

// NewForwarder returns a Forwarder speaking SPDY to the API server.
func NewForwarder(config *rest.Config, logger *log.Logger) Forwarder {
	return &spdyForwarder{config: config, log: logger}
}

func (f *spdyForwarder) Forward(ctx context.Context, namespace string, pod string, port int32) (uint16, func(), error) {
	roundTripper, upgrader, err := spdy.RoundTripperFor(f.config)
	if err != nil {
		return 0, nil, err
	}

	host := f.config.Host
	if _, h, ok := strings.Cut(host, "//"); ok { // remove scheme
		host = h
	}

	d := spdy.NewDialer(
		upgrader, &http.Client{Transport: roundTripper},
		http.MethodPost,
		&url.URL{
			Scheme: "https",
			Host:   host,
			Path: fmt.Sprintf(
				"/api/v1/namespaces/%s/pods/%s/portforward", namespace, pod,
			),
		},
	)

	stopChan := make(chan struct{})
	readyChan := make(chan struct{})
	forwarder, err := portforward.New(
		d, []string{fmt.Sprintf("0:%d", port)}, stopChan, readyChan, io.Discard, io.Discard,
	)
	if err != nil {
		return 0, nil, err
	}

	once := new(sync.Once)
	stop := func() { once.Do(func() { close(stopChan) }) }

	errChan := make(chan error, 1)
	go func() {
		if err := forwarder.ForwardPorts(); err != nil {
			f.log.Warnf("port forwarding to %s/%s:%d stopped: %s", namespace, pod, port, err)
			errChan <- err
		}
	}()

	select {
	case <-readyChan:
	case err := <-errChan:
		return 0, nil, err
	case <-ctx.Done():
		stop()
		return 0, nil, ctx.Err()
	}

	ports, err := forwarder.GetPorts()
	if err != nil {
		stop()
		return 0, nil, err
	}
	if len(ports) == 0 {
		stop()
		return 0, nil, fmt.Errorf("no ports are forwarded to %s/%s", namespace, pod)
	}
	return ports[0].Local, stop, nil
}

var errForwardClosed = errors.New("port forwarding is closed")

type forwarding struct {
	once  sync.Once
	local uint16
	stop  func()
	err   error
}

// forwards keeps port forwardings per service, so a service is forwarded at most once.
type forwards struct {
	m sync.Map // service name -> *forwarding
}

// open forwards to the pod, or returns the forwarding already opened for key.
func (fs *forwards) open(key string, f func() (uint16, func(), error)) (uint16, error) {
	v, _ := fs.m.LoadOrStore(key, &forwarding{})
	fw := v.(*forwarding)
	fw.once.Do(func() {
		fw.local, fw.stop, fw.err = f()
	})
	if fw.err != nil {
		fs.m.CompareAndDelete(key, fw)
		return 0, fw.err
	}
	return fw.local, nil
}

// close stops forwardings of which key satisfies pred.
func (fs *forwards) close(pred func(key string) bool) {
	fs.m.Range(func(k, v any) bool {
		key := k.(string)
		if !pred(key) {
			return true
		}
		fw := v.(*forwarding)
		fw.once.Do(func() { fw.err = errForwardClosed }) // or wait for opening
		if fs.m.CompareAndDelete(key, fw) && fw.stop != nil {
			fw.stop()
		}
		return true
	})
}
