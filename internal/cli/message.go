package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aridsondez/queuestore/internal/queue"
	"github.com/aridsondez/queuestore/internal/queue/store"
	"github.com/aridsondez/queuestore/pkg/client"
)

// newMessageCommand constructs the `message` command group and subcommands.
func newMessageCommand(a *app) *cobra.Command {
	msgCmd := &cobra.Command{
		Use:     "message",
		Aliases: []string{"msg"},
		Short:   "Message operations",
		Long: `Message operations.

A message is pending when last_delivered_ms + visibility_timeout_ms <= now.
"claim" performs the same lookup-then-claim step a worker does and prints
the claimed message; it does not delete it.`,
	}
	msgCmd.AddCommand(
		newMessagePutCommand(a),
		newMessageGetCommand(a),
		newMessageDeleteCommand(a),
		newMessagePendingCommand(a),
		newMessageClaimCommand(a),
	)
	return msgCmd
}

func newMessagePutCommand(a *app) *cobra.Command {
	var opts client.EnqueueOptions
	cmd := &cobra.Command{
		Use:   "put <queue> <content>",
		Short: "Enqueue a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, s store.Store) error {
				m, err := client.New(s).Enqueue(ctx, args[0], args[1], &opts)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), viewMessage(m))
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "message id (default: random uuid)")
	cmd.Flags().DurationVar(&opts.Visibility, "visibility", queue.UseQueueDefault, "visibility timeout (default: the queue's default)")
	return cmd
}

func newMessageGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, s store.Store) error {
				m, ok, err := s.LookupMessage(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: message %q", queue.ErrNotFound, args[0])
				}
				return printJSON(cmd.OutOrStdout(), viewMessage(m))
			})
		},
	}
}

func newMessageDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, s store.Store) error {
				if err := s.DeleteMessage(ctx, args[0]); err != nil {
					return fmt.Errorf("delete message %q: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted message %s\n", args[0])
				return nil
			})
		},
	}
}

func newMessagePendingCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending <queue>",
		Short: "Show one pending message without claiming it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := nowFlag(cmd)
			return a.withStore(cmd, func(ctx context.Context, s store.Store) error {
				m, ok, err := s.LookupPending(ctx, args[0], now)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "no pending message")
					return nil
				}
				return printJSON(cmd.OutOrStdout(), viewMessage(m))
			})
		},
	}
	cmd.Flags().Int64("now-ms", 0, "evaluate at this epoch millisecond instead of the current time")
	return cmd
}

func newMessageClaimCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim <queue>",
		Short: "Claim one pending message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := nowFlag(cmd)
			return a.withStore(cmd, func(ctx context.Context, s store.Store) error {
				m, ok, err := s.LookupPending(ctx, args[0], now)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "no pending message")
					return nil
				}
				claimed, won, err := s.UpdateLastDelivered(ctx, m, now)
				if err != nil {
					return err
				}
				if !won {
					fmt.Fprintf(cmd.OutOrStdout(), "claim on %s lost to another consumer\n", m.ID)
					return nil
				}
				return printJSON(cmd.OutOrStdout(), viewMessage(claimed))
			})
		},
	}
	cmd.Flags().Int64("now-ms", 0, "claim at this epoch millisecond instead of the current time")
	return cmd
}
