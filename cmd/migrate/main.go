package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-cart/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
	"github.com/angelmondragon/packfinderz-cart/pkg/migrate"
)

const usage = `usage: migrate [flags] <command>

commands that need a database:
  up          apply every pending catalog migration
  down        roll back the latest migration
  status      list migrations and their state
  to          migrate up or down to -version

offline commands:
  create      scaffold a migration named -name in -dir
  validate    check the embedded migrations
`

func main() {
	name := flag.String("name", "", "migration name for create")
	dir := flag.String("dir", migrate.SourceDir, "directory create writes into")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for to")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	cmd := flag.Arg(0)

	switch cmd {
	case "create":
		path, err := migrate.CreateSQLMigration(*dir, *name, time.Now())
		exitOnError("create", err)
		fmt.Println("created", path)
		return
	case "validate":
		exitOnError("validate", migrate.ValidateFS(migrate.Files()))
		fmt.Println("catalog migrations valid")
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	exitOnError("load config", err)

	logg := logger.New(logger.Options{
		ServiceName: "cart-migrate",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": cmd})

	if err := run(ctx, cfg, logg, cmd, *version); err != nil {
		dump := pkgerrors.Dump(err)
		if dump.Postgres != nil {
			ctx = logg.WithField(ctx, "postgres", dump.Postgres)
		}
		logg.Error(ctx, "migrate failed", err)
		os.Exit(1)
	}
}

// run talks to Postgres through lib/pq directly; the API's GORM pool is not involved.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, cmd, version string) (err error) {
	if cfg.DB.DSN == "" {
		return errors.New("CART_CATALOG_DB_DSN is required")
	}
	sqlDB, err := sql.Open("postgres", cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("open catalog db: %w", err)
	}
	defer func() {
		err = multierr.Append(err, sqlDB.Close())
	}()
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}

	runner, err := migrate.NewRunner(sqlDB, nil, logg)
	if err != nil {
		return err
	}

	switch cmd {
	case "up":
		return runner.Up(ctx)
	case "down":
		return runner.Down(ctx)
	case "to":
		if version == "" {
			return errors.New("-version is required for to")
		}
		return runner.MigrateTo(ctx, version)
	case "status":
		statuses, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
		for _, st := range statuses {
			applied := "-"
			if !st.AppliedAt.IsZero() {
				applied = st.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", st.Source.Version, st.State, applied, st.Source.Path)
		}
		return tw.Flush()
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func exitOnError(step string, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
	os.Exit(1)
}
