package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-dose-timer/internal/clock"
	"github.com/tbourn/go-dose-timer/internal/config"
	"github.com/tbourn/go-dose-timer/internal/repo"
	"github.com/tbourn/go-dose-timer/internal/services"
	"github.com/tbourn/go-dose-timer/internal/sysutil"
	"github.com/tbourn/go-dose-timer/internal/ui"
)

// app carries the persistent flags, the loaded configuration and the lazily
// opened service shared by every subcommand.
type app struct {
	configPath string
	dbPath     string
	tz         string
	jsonOutput bool

	cfg config.Config
	db  *gorm.DB
	svc *services.DoseService

	// seams
	stdin       io.Reader
	interactive func() bool
	now         func() time.Time
}

func newApp() *app {
	return &app{
		stdin:       os.Stdin,
		interactive: func() bool { return ui.IsTerminal(os.Stdin) },
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "dosetimer",
		Short:        "Dose log with a live elapsed timer",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.configure(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "TOML config file (default $"+config.EnvConfigFile+")")
	pf.StringVar(&a.dbPath, "db", "", "SQLite database path (overrides DB_PATH)")
	pf.StringVar(&a.tz, "tz", "", "IANA reference time zone (overrides DOSE_TIMEZONE)")
	pf.BoolVar(&a.jsonOutput, "json", false, "output as JSON")

	root.AddCommand(
		newServeCmd(a),
		newAddCmd(a),
		newListCmd(a),
		newDeleteCmd(a),
		newClearCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newStatusCmd(a),
		newWatchCmd(a),
	)
	return root
}

// configure loads the layered configuration, applies flag overrides and sets
// up logging and color.
func (a *app) configure(cmd *cobra.Command) error {
	path := sysutil.FirstNonEmpty(a.configPath, os.Getenv(config.EnvConfigFile))
	cfg, err := config.LoadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	if a.tz != "" {
		cfg.Dose.Timezone = a.tz
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.cfg = cfg

	sysutil.SetupLogging(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogPretty)
	ui.SetColor(!a.jsonOutput && ui.ShouldUseColor())
	return nil
}

// service opens the database and loads the dose log on first use.
func (a *app) service(ctx context.Context) (*services.DoseService, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	db, err := repo.OpenSQLite(a.cfg.DBPath, repo.Options{Quiet: true, Traced: a.cfg.OTEL.Enabled})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.cfg.DBPath, err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		_ = repo.Close(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	clk, err := clock.Load(a.cfg.Dose.Timezone)
	if err != nil {
		_ = repo.Close(db)
		return nil, err
	}
	if a.now != nil {
		clk = clk.WithNow(a.now)
	}

	svc := services.NewDoseService(db, clk)
	svc.Key = a.cfg.Dose.StorageKey
	svc.Threshold = a.cfg.Dose.WarningThreshold
	svc.IdempotencyTTL = a.cfg.IdempotencyTTL
	if err := svc.Reload(ctx); err != nil {
		log.Warn().Err(err).Msg("could not read dose log; starting empty")
	}

	a.db, a.svc = db, svc
	return svc, nil
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if err := repo.Close(a.db); err != nil {
		log.Debug().Err(err).Msg("close database")
	}
	a.db, a.svc = nil, nil
}

// confirm asks on stderr, reading the answer from stdin.
func (a *app) confirm(cmd *cobra.Command, question string) (bool, error) {
	return ui.Confirm(a.stdin, cmd.ErrOrStderr(), question)
}

func parseAmount(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return f, nil
}
