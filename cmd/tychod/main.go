package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/helxplatform/appstore/cmd/tychod/handlers"
	"github.com/helxplatform/appstore/pkg/actions"
	"github.com/helxplatform/appstore/pkg/buildtime"
	kconf "github.com/helxplatform/appstore/pkg/configs/tycho"
	"github.com/helxplatform/appstore/pkg/metrics"
	"github.com/helxplatform/appstore/pkg/model"
	"github.com/helxplatform/appstore/pkg/tycho"
	"github.com/helxplatform/appstore/pkg/utils/echoutil"
	"github.com/helxplatform/appstore/pkg/utils/filewatch"
	"github.com/helxplatform/appstore/pkg/utils/try"
	"github.com/labstack/echo/v4"
	glog "github.com/labstack/gommon/log"
)

func main() {
	configPath := flag.String("config-path", "tycho.yaml", "tycho config path")
	loglevel := flag.String("loglevel", "info", "log level. debug|info|warn|error|off")
	port := flag.String("port", "5000", "port to listen")
	pversion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *pversion {
		log.Println(buildtime.VersionString())
		return
	}

	e := echo.New()
	e.HideBanner = true

	// set log
	echoutil.SetLevel(e, *loglevel)
	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}
	e.Use(echoutil.LogHandlerFunc)

	logger := glog.New("tychod")
	if lvl, ok := echoutil.ParseLevel(*loglevel); ok {
		logger.SetLevel(lvl)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	environ := kconf.LoadEnviron()

	conf := try.To(kconf.LoadTychoConfig(*configPath)).OrFatalf(logger, "can not read configuration: %s")
	current := handlers.NewCurrent(
		try.To(build(ctx, conf, environ, m, logger)).OrFatalf(logger, "can not connect backplane: %s"),
	)

	// the config file is read again on change. A broken one keeps the running configuration.
	if err := filewatch.OnModify(ctx, func(ev fsnotify.Event) {
		err := reload(ctx, *configPath, current, environ, m, logger)
		m.Reloaded(err)
		if err != nil {
			logger.Errorf("config is not reloaded (%s): %s", ev, err)
			return
		}
		logger.Infof("config is reloaded (%s)", ev)
	}, *configPath); err != nil {
		log.Fatalf("can not watch configuration: %s", err)
	}

	if err := handlers.Register(e, "/system", current); err != nil {
		log.Fatalf("can not register handlers: %s", err)
	}
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
	e.GET("/healthz", handlers.HealthHandler())

	log.Println("registred routes:")
	for _, r := range e.Routes() {
		log.Println(r.Method, r.Path)
	}

	context.AfterFunc(ctx, func() {
		graceful, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := e.Shutdown(graceful); err != nil {
			log.Printf("error on shutdown: %s", err)
		}
	})

	if err := e.Start(":" + *port); err != nil && ctx.Err() == nil {
		e.Logger.Fatal(err)
	}
}

func build(ctx context.Context, conf *kconf.Config, environ kconf.Environ, m *metrics.Metrics, logger *glog.Logger) (*actions.Resources, error) {
	backend, err := tycho.NewBackend(ctx, conf, environ, logger)
	if err != nil {
		return nil, err
	}
	parser := model.NewParser(conf, environ, model.WithLogger(logger))
	return actions.New(
		tycho.New(parser, backend),
		actions.WithMetrics(m), actions.WithLogger(logger),
	)
}

func reload(ctx context.Context, path string, current *handlers.Current, environ kconf.Environ, m *metrics.Metrics, logger *glog.Logger) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	conf, err := kconf.TryUnmarshal(content)
	if err != nil {
		return err
	}
	res, err := build(ctx, conf, environ, m, logger)
	if err != nil {
		return err
	}
	current.Store(res)
	return nil
}
