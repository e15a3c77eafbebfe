package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/helxplatform/appstore/pkg/templates"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type upFlags struct {
	file      string
	app       string
	name      string
	container string
	port      int
	command   string
	volumes   string
	settings  string
}

// generated is the docker-compose spec built from `up` flags.
const generated = `
version: "3"
services:
  {{args.name}}:
    image: {{args.container}}
{% if args.command %}
    entrypoint: {{args.command}}
{% endif %}
{% if args.port %}
    ports:
      - "{{args.port}}"
{% endif %}
{% if args.volumes %}
    volumes:
      - "{{args.volumes}}"
{% endif %}
`

func newUp(r *root) *cobra.Command {
	f := &upFlags{}
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Launch a system.",
		Long: `Launch a system.

The system is one of:

  - an app of the app-support repository (--app),
  - a docker-compose file (--file). Its .env is read as settings, if any.
  - a single service generated from --name, --container, --port, --command and --volumes.`,
		Example: `  tycho up -f apps/jupyter-ds/docker-compose.yaml
  tycho up --app jupyter-ds
  tycho up -n nginx -c nginx:1.27 -p 80`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			name, system, settings, err := f.system()
			if err != nil {
				return err
			}
			if a := f.app; a != "" {
				app, err := r.apps(r.logger()).Get(ctx, a)
				if err != nil {
					return err
				}
				name, system = a, app.System
				if app.Settings != "" {
					settings = app.Settings
					fmt.Fprintf(cmd.OutOrStdout(), "settings: %s\n", settings)
				}
			}

			c, err := r.client(ctx)
			if err != nil {
				return err
			}
			return c.Up(ctx, cmd.OutOrStdout(), name, system, settings)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.file, "file", "f", "", "A docker compose (subset) formatted system spec.")
	flags.StringVarP(&f.app, "app", "a", "", "Name of the app in the app-support repository.")
	flags.StringVarP(&f.name, "name", "n", "", "Service name.")
	flags.StringVarP(&f.container, "container", "c", "", "Container to run.")
	flags.IntVarP(&f.port, "port", "p", 0, "Port to expose.")
	flags.StringVar(&f.command, "command", "", "Container command.")
	flags.StringVarP(&f.volumes, "volumes", "v", "", "Mounts a volume.")
	flags.StringVar(&f.settings, "settings", "", "Environment settings file.")
	cmd.MarkFlagsMutuallyExclusive("app", "file")
	return cmd
}

// system decides the name, the spec and settings of the system to be launched.
//
// For --app, only settings are read here: the app is fetched by the caller.
func (f *upFlags) system() (name string, system map[string]any, settings string, err error) {
	if f.settings != "" {
		b, err := os.ReadFile(f.settings)
		if err != nil {
			return "", nil, "", err
		}
		settings = string(b)
	}

	switch {
	case f.app != "":
		return f.app, nil, settings, nil

	case f.file != "":
		name = f.name
		if name == "" {
			name, err = nameOf(f.file)
			if err != nil {
				return "", nil, "", err
			}
		}
		if b, err := os.ReadFile(filepath.Join(filepath.Dir(f.file), ".env")); err == nil {
			settings = string(b)
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", nil, "", err
		}

		b, err := os.ReadFile(f.file)
		if err != nil {
			return "", nil, "", err
		}
		system = map[string]any{}
		if err := yaml.Unmarshal(b, &system); err != nil {
			return "", nil, "", fmt.Errorf("%s is not a system spec: %w", f.file, err)
		}
		return name, system, settings, nil

	default:
		if f.name == "" || f.container == "" {
			return "", nil, "", errors.New("either --app, --file, or --name with --container is required")
		}
		docs, err := templates.RenderText(
			templates.ApplyEnvironment(settings, generated),
			map[string]any{"args": map[string]any{
				"name":      f.name,
				"container": f.container,
				"port":      f.port,
				"command":   f.command,
				"volumes":   f.volumes,
			}},
		)
		if err != nil {
			return "", nil, "", err
		}
		system, err = docs.First()
		if err != nil {
			return "", nil, "", err
		}
		return f.name, system, settings, nil
	}
}

// nameOf names a system after the directory containing its compose file.
//
// A bare file name is taken as in the working directory.
func nameOf(file string) (string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}
	return filepath.Base(filepath.Dir(abs)), nil
}
