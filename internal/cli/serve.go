package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aridsondez/queuestore/internal/api"
	"github.com/aridsondez/queuestore/internal/queue"
	"github.com/aridsondez/queuestore/pkg/worker"
)

func newServeCommand(a *app) *cobra.Command {
	var queues []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics and queue inspection over HTTP",
		Long: `Serve health, metrics and queue inspection over HTTP.

With --drain, an in-process worker claims messages from the named queues,
logs them and deletes them. On shutdown the store is closed and, when
DROP_SCHEMA_ON_SHUTDOWN is set, the schema is dropped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), queues)
		},
	}
	cmd.Flags().StringSliceVar(&queues, "drain", nil, "queues to consume with a logging worker")
	return cmd
}

func (a *app) serve(ctx context.Context, drain []string) error {
	s, err := a.openStore(ctx, a.cfg.CreateSchema)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", a.cfg.Port)
	httpSrv := api.NewServer(addr, s, a.log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if len(drain) > 0 {
		w := worker.New(worker.Config{Store: s, PollDelay: a.cfg.PollDelay, Logger: a.log})
		for _, name := range drain {
			w.Handle(name, a.logAndDelete)
		}
		g.Go(func() error { return w.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info().Msg("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.Close(closeCtx, a.cfg.DropSchemaOnShutdown); err != nil {
		a.log.Error().Err(err).Msg("close store")
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func (a *app) logAndDelete(_ context.Context, msg queue.Message) error {
	a.log.Info().
		Str("queue", msg.Queue).
		Str("message_id", msg.ID).
		Int("bytes", len(msg.Content)).
		Msg("drained message")
	return nil
}
