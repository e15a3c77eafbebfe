// Package commands is the tycho command line.
package commands

import (
	"context"
	"io"
	"os"

	"github.com/helxplatform/appstore/pkg/appsupport"
	"github.com/helxplatform/appstore/pkg/buildtime"
	"github.com/helxplatform/appstore/pkg/client"
	"github.com/helxplatform/appstore/pkg/compute/kube"
	"github.com/helxplatform/appstore/pkg/tycho"
	"github.com/helxplatform/appstore/pkg/utils/kubeutil"
	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"
)

// AppSource gives apps for `up --app`. *appsupport.Repository is one.
type AppSource interface {
	Get(ctx context.Context, app string) (*appsupport.App, error)
}

var _ AppSource = &appsupport.Repository{}

// Connector makes a client talking to the tycho API.
type Connector func(ctx context.Context, service string, opts ...client.Option) (*client.Client, error)

type options struct {
	stdout  io.Writer
	connect Connector
	apps    func(logger *log.Logger) AppSource
}

type Option func(*options) *options

// WithOutput sets where tables and results are written.
func WithOutput(w io.Writer) Option {
	return func(o *options) *options {
		o.stdout = w
		return o
	}
}

func WithConnector(c Connector) Option {
	return func(o *options) *options {
		o.connect = c
		return o
	}
}

func WithAppSource(a AppSource) Option {
	return func(o *options) *options {
		o.apps = func(*log.Logger) AppSource { return a }
		return o
	}
}

// Connect locates the tycho API.
//
// When service is the default URL, the API is looked up in the kubernetes cluster first.
// Otherwise, service is used as it is.
func Connect(ctx context.Context, service string, opts ...client.Option) (*client.Client, error) {
	if service != client.DefaultURL {
		return client.New(client.NewHTTP(service, nil), opts...), nil
	}

	_, clientset, err := kubeutil.Connect()
	if err != nil {
		// no cluster around. try the default.
		return client.New(client.NewHTTP(service, nil), opts...), nil
	}
	factory := client.NewClientFactory(
		kube.WrapK8sClient(clientset), kubeutil.Namespace("default"),
		client.WithMinikube(tycho.MinikubeIP),
	)
	return factory.GetClient(ctx, client.DefaultServiceName, service, opts...), nil
}

// root holds values of persistent flags.
type root struct {
	service  string
	username string
	trace    bool

	options
}

func (r *root) logger() *log.Logger {
	l := log.New("tycho")
	if r.trace {
		l.SetLevel(log.DEBUG)
	} else {
		l.SetLevel(log.WARN)
	}
	return l
}

func (r *root) client(ctx context.Context) (*client.Client, error) {
	l := r.logger()
	return r.connect(ctx, r.service, client.WithLogger(l), client.WithUsername(r.username))
}

// New builds the tycho command.
func New(opts ...Option) *cobra.Command {
	r := &root{
		options: options{
			stdout:  os.Stdout,
			connect: Connect,
			apps: func(l *log.Logger) AppSource {
				return appsupport.New(
					appsupport.DefaultRepoURL, appsupport.DefaultAppsDir,
					appsupport.WithLogger(l),
				)
			},
		},
	}
	for _, o := range opts {
		r.options = *o(&r.options)
	}

	cmd := &cobra.Command{
		Use:   "tycho",
		Short: "Tycho client",
		Long: `Launch, list, modify and delete systems with the tycho API.

Systems are docker-compose formatted specs. They are given as a file,
as an app of the app-support repository, or generated from flags.`,
		SilenceUsage: true,
	}
	cmd.SetOut(r.stdout)

	cmd.PersistentFlags().StringVar(&r.service, "service", client.DefaultURL, "Tycho API URL.")
	cmd.PersistentFlags().StringVar(&r.username, "username", client.DefaultUsername, "user owning systems.")
	cmd.PersistentFlags().BoolVarP(&r.trace, "trace", "t", false, "Trace (debug) logging.")

	cmd.AddCommand(
		newUp(r),
		newStatus(r),
		newDown(r),
		newModify(r),
		newApps(r),
		&cobra.Command{
			Use:   "version",
			Short: "Show version of this command.",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				cmd.Println(buildtime.VersionString())
			},
		},
	)
	return cmd
}
