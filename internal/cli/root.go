// Package cli implements the medinv command line tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/medkit/medinventory"
	"github.com/medkit/medinventory/pkg/connection"
	"github.com/medkit/medinventory/pkg/logger"
	"github.com/medkit/medinventory/pkg/models"
)

// Exit codes.
const (
	ExitSuccess   = 0
	ExitUserError = 1
	ExitSysError  = 2
)

// Version is printed by the --version flag.
var Version = "dev"

type app struct {
	configFile string
	jsonOutput bool
	page       int
	perPage    int

	out io.Writer
	// newConnection creates the connection for a loaded config.
	newConnection func(cfg *medinventory.Config) (connection.Connection, error)

	db  *medinventory.DB
	log *logger.LogData
}

// NewRootCmd builds the medinv command tree writing results to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	return newRootCmd(&app{out: out, newConnection: medinventory.NewConnection})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "medinv",
		Short: "medinv reads and updates the medical supply inventory",
		Long: `medinv talks to the inventory store configured in the config file or
through MEDINV_* environment variables, for example:

  MEDINV_URL=https://project.supabase.co MEDINV_ANON_KEY=... medinv inventory list
  MEDINV_URL=postgres://localhost/medinv MEDINV_IDENTITY=<uuid> medinv stock take 4 2`,
		Version:            Version,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.open,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return a.close(cmd.Context()) },
	}
	root.SetOut(a.out)

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default: $"+medinventory.ConfigFileEnv+")")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "output as JSON")
	root.PersistentFlags().IntVar(&a.page, "page", 1, "page to show, starting at 1")
	root.PersistentFlags().IntVar(&a.perPage, "per-page", models.FirstPage().ItemsPerPage, "rows per page")

	root.AddCommand(
		a.sessionCmd(),
		a.inventoryCmd(),
		a.suppliesCmd(),
		a.logsCmd(),
		a.stockCmd(),
		a.rowCmd(),
		a.migrateCmd(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	a := &app{out: out, newConnection: medinventory.NewConnection}
	cmd := newRootCmd(a)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	// PersistentPostRunE is skipped when a command fails.
	if closeErr := a.close(ctx); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintln(errOut, "Error:", err)
		var qe *medinventory.QueryError
		if errors.As(err, &qe) {
			return ExitSysError
		}
		return ExitUserError
	}
	return ExitSuccess
}

// open loads the config and connects.
func (a *app) open(cmd *cobra.Command, args []string) error {
	cfg, err := medinventory.LoadConfig(a.configFile)
	if err != nil {
		return err
	}

	a.log, err = logger.New().FromBuffer(cmd.ErrOrStderr()).FromPath(cfg.LogPath).Level(cfg.LogLevel).Make()
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	cfg.Logger = a.log

	conn, err := a.newConnection(cfg)
	if err != nil {
		return err
	}

	opts := []medinventory.Option{
		medinventory.WithLogger(a.log),
		medinventory.WithQueryTimeout(cfg.QueryTimeout),
	}
	if cfg.ParallelPartitions {
		opts = append(opts, medinventory.WithParallelPartitions())
	}

	a.db, err = medinventory.FromConnection(cmd.Context(), conn, opts...)
	return err
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close(ctx))
		a.db = nil
	}
	if a.log != nil {
		errs = append(errs, a.log.Close())
		a.log = nil
	}
	return errors.Join(errs...)
}

func (a *app) options() models.DataFetchOptions {
	return models.DataFetchOptions{ItemsPerPage: a.perPage, Page: a.page}
}
