package commands

import (
	"fmt"
	"sort"

	kconf "github.com/helxplatform/appstore/pkg/configs/tycho"
	"github.com/helxplatform/appstore/pkg/registry"
	"github.com/helxplatform/appstore/pkg/templates"
	"github.com/spf13/cobra"
)

const (
	RegistryFile = "app-registry.yaml"
	DefaultsFile = "app-defaults.yaml"
)

type appsFlags struct {
	url     string
	dir     string
	product string
	cache   string
}

func newApps(r *root) *cobra.Command {
	f := &appsFlags{}
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "List apps of a product.",
		Long: `List apps in the app registry for a product.

The registry (` + RegistryFile + ` and ` + DefaultsFile + `) is read from --registry-url,
or from --registry-dir when no URL is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l := r.logger()
			opts := []registry.FetcherOption{registry.WithFetcherLogger(l)}
			if f.cache != "" {
				cache, err := registry.OpenBoltCache(f.cache)
				if err != nil {
					return err
				}
				defer cache.Close()
				opts = append(opts, registry.WithCache(cache))
			}
			fetcher := registry.NewFetcher(f.url, f.dir, opts...)

			reg, err := registry.LoadFrom(
				cmd.Context(), fetcher, RegistryFile, DefaultsFile,
				registry.WithEnviron(kconf.LoadEnviron()), registry.WithLoadLogger(l),
			)
			if err != nil {
				return err
			}
			apps, err := reg.Resolve(f.product)
			if err != nil {
				return err
			}

			ids := make([]string, 0, len(apps))
			for id := range apps {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			out := cmd.OutOrStdout()
			format := "%-24s %-32s %s\n"
			fmt.Fprintf(out, format, "APP", "NAME", "SPEC")
			for _, id := range ids {
				app := apps[id]
				fmt.Fprintf(out, format, templates.Trunc(id, 22), templates.Trunc(app.Name, 30), app.Spec)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.url, "registry-url", "", "Base URL of the app registry.")
	flags.StringVar(&f.dir, "registry-dir", ".", "Directory of the app registry.")
	flags.StringVar(&f.product, "product", "common", "Product whose apps are listed.")
	flags.StringVar(&f.cache, "cache", "", "File to cache downloaded registry files in.")
	return cmd
}
