package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/sungwon/mailbridge/internal/config"
	"github.com/sungwon/mailbridge/internal/logger"
)

var (
	configPath     string
	migrationsPath string
	databaseURL    string
)

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Database migration tool for the mail bridge",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Run all pending migrations",
	Args:  cobra.NoArgs,
	RunE:  runUp,
}

var downCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back the last migration, or the given number of steps",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDown,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the current migration version",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

var forceCmd = &cobra.Command{
	Use:   "force [version]",
	Short: "Set the migration version without running migrations (clears dirty state)",
	Args:  cobra.ExactArgs(1),
	RunE:  runForce,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config", "directory containing config.yaml")
	rootCmd.PersistentFlags().StringVar(&migrationsPath, "path", "migrations", "directory containing migration files")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "database URL (overrides database.url)")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(forceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// pgx5URL rewrites a postgres URL to the scheme registered by the pgx v5
// migration driver.
func pgx5URL(url string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(url, scheme) {
			return "pgx5://" + strings.TrimPrefix(url, scheme)
		}
	}
	return url
}

func getMigrator() (*migrate.Migrate, error) {
	url := databaseURL
	if url == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		url = cfg.Database.URL
	}
	if url == "" {
		return nil, errors.New("database url is required (database.url or --database-url)")
	}

	m, err := migrate.New("file://"+migrationsPath, pgx5URL(url))
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

func closeMigrator(m *migrate.Migrate) {
	_, _ = m.Close()
}

func runUp(cmd *cobra.Command, args []string) error {
	log := logger.New("info")
	log.Info().Str("path", migrationsPath).Msg("running migrations")

	m, err := getMigrator()
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info().Msg("migrations completed successfully")
	return nil
}

func runDown(cmd *cobra.Command, args []string) error {
	steps := 1
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid steps %q: must be a positive integer", args[0])
		}
		steps = n
	}

	log := logger.New("info")
	log.Info().Int("steps", steps).Msg("rolling back migrations")

	m, err := getMigrator()
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if err := m.Steps(-steps); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	log.Info().Msg("rollback completed successfully")
	return nil
}

func runVersion(cmd *cobra.Command, args []string) error {
	m, err := getMigrator()
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Fprintln(cmd.OutOrStdout(), "No migrations have been applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Current version: %d\nDirty: %v\n", version, dirty)
	return nil
}

func runForce(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[0], err)
	}

	m, err := getMigrator()
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if err := m.Force(version); err != nil {
		return fmt.Errorf("force failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Forced version %d\n", version)
	return nil
}
