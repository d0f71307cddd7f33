package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aridsondez/queuestore/internal/queue"
	"github.com/aridsondez/queuestore/internal/queue/store"
)

// newQueueCommand constructs the `queue` command group and subcommands.
func newQueueCommand(a *app) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:     "queue",
		Aliases: []string{"q"},
		Short:   "Queue definition operations",
	}
	queueCmd.AddCommand(
		newQueueWriteCommand(a, "create", "Create a queue", func(ctx context.Context, s store.Store, q queue.Queue) error {
			return s.PersistQueue(ctx, q)
		}),
		newQueueWriteCommand(a, "update", "Change a queue's default visibility timeout", func(ctx context.Context, s store.Store, q queue.Queue) error {
			return s.UpdateQueue(ctx, q)
		}),
		newQueueDeleteCommand(a),
		newQueueGetCommand(a),
		newQueueListCommand(a),
	)
	return queueCmd
}

func newQueueWriteCommand(a *app, use, short string, write func(context.Context, store.Store, queue.Queue) error) *cobra.Command {
	var visibility time.Duration
	cmd := &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := queue.Queue{Name: args[0], DefaultVisibilityTimeout: visibility}
			return a.withStore(cmd, func(ctx context.Context, s store.Store) error {
				if err := write(ctx, s, q); err != nil {
					return fmt.Errorf("%s queue %q: %w", use, q.Name, err)
				}
				return printJSON(cmd.OutOrStdout(), viewQueue(q))
			})
		},
	}
	cmd.Flags().DurationVar(&visibility, "visibility", 30*time.Second, "default visibility timeout for messages in the queue")
	return cmd
}

func newQueueDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a queue and all of its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, s store.Store) error {
				if err := s.DeleteQueue(ctx, args[0]); err != nil {
					return fmt.Errorf("delete queue %q: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted queue %s\n", args[0])
				return nil
			})
		},
	}
}

func newQueueGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Show a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, s store.Store) error {
				q, ok, err := s.LookupQueue(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: queue %q", queue.ErrNotFound, args[0])
				}
				return printJSON(cmd.OutOrStdout(), viewQueue(q))
			})
		},
	}
}

func newQueueListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, s store.Store) error {
				qs, err := s.ListQueues(ctx)
				if err != nil {
					return err
				}
				views := make([]queueView, 0, len(qs))
				for _, q := range qs {
					views = append(views, viewQueue(q))
				}
				return printJSON(cmd.OutOrStdout(), views)
			})
		},
	}
}
