package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// newSchemaCommand constructs the `schema` command group.
func newSchemaCommand(a *app) *cobra.Command {
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Create or drop the queue and message tables",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create missing tables (existing tables are left alone)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openStore(ctx, true)
			if err != nil {
				return err
			}
			if err := s.Close(context.WithoutCancel(ctx), false); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
			return nil
		},
	}

	dropCmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop the message and queue tables if present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openStore(ctx, false)
			if err != nil {
				return err
			}
			if err := s.Close(context.WithoutCancel(ctx), true); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema dropped")
			return nil
		},
	}

	schemaCmd.AddCommand(createCmd, dropCmd)
	return schemaCmd
}
