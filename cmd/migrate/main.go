// Command migrate manages the catalog database schema from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ibdb/book-catalog-service/internal/config"
	"github.com/ibdb/book-catalog-service/internal/database"
	"github.com/ibdb/book-catalog-service/internal/observability"
)

const connectTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// action is one requested migration operation.
type action struct {
	name  string
	steps int
	force int
}

func parseAction() (*action, error) {
	up := flag.Bool("up", false, "apply every pending migration")
	down := flag.Bool("down", false, "roll back every migration")
	steps := flag.Int("steps", 0, "apply N migrations, negative rolls back")
	version := flag.Bool("version", false, "print the current schema version")
	force := flag.Int("force", -1, "stamp the schema version without migrating, recovers a dirty state")
	flag.Parse()

	var actions []*action
	if *up {
		actions = append(actions, &action{name: "up"})
	}
	if *down {
		actions = append(actions, &action{name: "down"})
	}
	if *steps != 0 {
		actions = append(actions, &action{name: "steps", steps: *steps})
	}
	if *version {
		actions = append(actions, &action{name: "version"})
	}
	if *force >= 0 {
		actions = append(actions, &action{name: "force", force: *force})
	}

	switch len(actions) {
	case 0:
		flag.Usage()
		return nil, fmt.Errorf("no action specified")
	case 1:
		return actions[0], nil
	default:
		return nil, fmt.Errorf("specify only one action at a time")
	}
}

func run() error {
	migrationsPath := flag.String("path", "", "override the migrations directory")
	act, err := parseAction()
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}).With().Str("component", "migrate").Logger()

	dir := cfg.Database.MigrationPath
	if *migrationsPath != "" {
		dir = *migrationsPath
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, dir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if err := execute(migrator, act); err != nil {
		return err
	}

	reportVersion(migrator, logger)
	return nil
}

func execute(migrator *database.Migrator, act *action) error {
	switch act.name {
	case "up":
		return migrator.Up()
	case "down":
		return migrator.Down()
	case "steps":
		return migrator.Steps(act.steps)
	case "force":
		return migrator.Force(act.force)
	case "version":
		return nil
	default:
		return fmt.Errorf("unknown action %q", act.name)
	}
}

func reportVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine schema version")
		return
	}
	logger.Info().
		Uint("version", v).
		Bool("dirty", dirty).
		Msg("current schema version")
}
