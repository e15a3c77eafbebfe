package commands

import (
	"encoding/json"
	"fmt"

	"github.com/helxplatform/appstore/pkg/api/types"
	"github.com/spf13/cobra"
)

func newStatus(r *root) *cobra.Command {
	terse := false
	cmd := &cobra.Command{
		Use:   "status [NAME]",
		Short: "Get status of running systems.",
		Long: `Get status of running systems.

Without NAME, all systems of the user are listed.
With --terse, only their identifiers are printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) != 0 {
				name = args[0]
			}
			c, err := r.client(cmd.Context())
			if err != nil {
				return err
			}
			return c.List(cmd.Context(), cmd.OutOrStdout(), name, terse)
		},
	}
	cmd.Flags().BoolVar(&terse, "terse", false, "Keep status short.")
	return cmd
}

func newDown(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "down GUID...",
		Short: "Delete running systems.",
		Long: `Delete running systems.

Every system is tried, even after some fail.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := r.client(cmd.Context())
			if err != nil {
				return err
			}
			return c.Down(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}
}

func newModify(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "modify JSON",
		Short: "Modify a running system.",
		Long: `Modify labels and resources of a running system.

JSON is an object like:

	{"tycho-guid": "...", "labels": {"name": "value"}, "cpu": "500m", "memory": "1Gi"}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := types.ModifyRequest{}
			if err := json.Unmarshal([]byte(args[0]), &req); err != nil {
				return fmt.Errorf("can not understand the modification: %w", err)
			}
			c, err := r.client(cmd.Context())
			if err != nil {
				return err
			}
			result, err := c.Patch(cmd.Context(), req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "    ")
			return enc.Encode(result)
		},
	}
}
