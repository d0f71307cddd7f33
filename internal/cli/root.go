// Package cli contains the Cobra commands of the queuestore binary.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aridsondez/queuestore/internal/config"
	"github.com/aridsondez/queuestore/internal/logger"
	"github.com/aridsondez/queuestore/internal/queue"
	"github.com/aridsondez/queuestore/internal/queue/store"
	"github.com/aridsondez/queuestore/internal/queue/store/backend"
)

// app carries what every subcommand needs once the root has run.
type app struct {
	envFile string
	cfg     *config.Config
	log     zerolog.Logger
}

// NewRoot constructs the root command and registers the command groups.
func NewRoot() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "queuestore",
		Short:         "Durable queue and message store",
		Long:          "queuestore manages the queue and message tables and serves health, metrics and inspection endpoints.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	root.PersistentFlags().String("driver", "", "store driver (postgres, mysql, sqlite); overrides STORE_DRIVER")
	root.PersistentFlags().String("database-url", "", "datastore DSN; overrides DATABASE_URL")

	root.AddCommand(
		newSchemaCommand(a),
		newQueueCommand(a),
		newMessageCommand(a),
		newServeCommand(a),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	if err := godotenv.Load(a.envFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load %s: %w", a.envFile, err)
	}
	if driver, _ := cmd.Flags().GetString("driver"); driver != "" {
		if err := os.Setenv("STORE_DRIVER", driver); err != nil {
			return err
		}
	}
	if dsn, _ := cmd.Flags().GetString("database-url"); dsn != "" {
		if err := os.Setenv("DATABASE_URL", dsn); err != nil {
			return err
		}
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.log = logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	return nil
}

// openStore connects with the configured driver. createSchema overrides
// CREATE_SCHEMA for commands that manage the schema themselves.
func (a *app) openStore(ctx context.Context, createSchema bool) (store.Store, error) {
	return backend.Open(ctx, backend.Config{
		Driver:         a.cfg.Driver,
		DSN:            a.cfg.DatabaseURL,
		CreateSchema:   createSchema,
		ConnectTimeout: a.cfg.DBConnectionTimeout,
		Logger:         a.log,
	})
}

// withStore opens the store, runs fn and releases the connection without
// touching the schema.
func (a *app) withStore(cmd *cobra.Command, fn func(ctx context.Context, s store.Store) error) error {
	ctx := cmd.Context()
	s, err := a.openStore(ctx, a.cfg.CreateSchema)
	if err != nil {
		return err
	}
	runErr := fn(ctx, s)
	if err := s.Close(context.WithoutCancel(ctx), false); err != nil && runErr == nil {
		runErr = fmt.Errorf("close store: %w", err)
	}
	return runErr
}

type queueView struct {
	Name                           string `json:"name"`
	DefaultVisibilityTimeoutMillis int64  `json:"default_visibility_timeout_ms"`
}

type messageView struct {
	ID                      string `json:"id"`
	Queue                   string `json:"queue"`
	Content                 string `json:"content"`
	VisibilityTimeoutMillis int64  `json:"visibility_timeout_ms"`
	LastDeliveredMillis     int64  `json:"last_delivered_ms"`
	VisibleAtMillis         int64  `json:"visible_at_ms"`
}

func viewQueue(q queue.Queue) queueView {
	return queueView{Name: q.Name, DefaultVisibilityTimeoutMillis: q.DefaultVisibilityTimeout.Milliseconds()}
}

func viewMessage(m queue.Message) messageView {
	return messageView{
		ID:                      m.ID,
		Queue:                   m.Queue,
		Content:                 m.Content,
		VisibilityTimeoutMillis: m.VisibilityTimeout.Milliseconds(),
		LastDeliveredMillis:     queue.EpochMillis(m.LastDelivered),
		VisibleAtMillis:         queue.EpochMillis(m.VisibleAt()),
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// nowFlag reads --now-ms, falling back to the wall clock.
func nowFlag(cmd *cobra.Command) time.Time {
	ms, _ := cmd.Flags().GetInt64("now-ms")
	if ms > 0 {
		return queue.FromEpochMillis(ms)
	}
	return time.Now()
}
