// Package cmd implements the schoolctl administration commands.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"example.com/mergington/internal/config"
	"example.com/mergington/internal/domain"
	"example.com/mergington/internal/persistence"
)

var storeDriver string

// openBackend is replaced in tests.
var openBackend = persistence.Open

var rootCmd = &cobra.Command{
	Use:   "schoolctl",
	Short: "Administer Mergington High School activities",
	Long: `schoolctl works directly against the configured activity store.

It reads the same environment as the api binary (STORE_DRIVER, POSTGRES_URL,
SQLITE_PATH, CATALOG_PATH) so operators can seed the catalog, fix rosters
and replay undelivered registration events without going through HTTP.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeDriver, "store", "", "store driver override (memory, sqlite, postgres)")
}

// withBackend loads configuration and opens the store for the duration of fn.
func withBackend(ctx context.Context, fn func(*persistence.Backend, config.Config) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if driver := config.NormalizeDriver(storeDriver); driver != "" {
		cfg.StoreDriver = driver
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	defer backend.Close()

	return fn(backend, cfg)
}

func withService(ctx context.Context, fn func(*domain.Service, config.Config) error) error {
	return withBackend(ctx, func(backend *persistence.Backend, cfg config.Config) error {
		return fn(domain.NewService(backend.Repo), cfg)
	})
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
}
