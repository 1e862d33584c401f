package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/mergington/internal/catalog"
	"example.com/mergington/internal/config"
	"example.com/mergington/internal/domain"
)

var catalogFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the activity catalog into an empty store",
	Long: `Loads the catalog from --catalog, CATALOG_PATH or the built-in list.

Nothing is written when the store already holds activities.`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&catalogFile, "catalog", "", "YAML catalog file (default: CATALOG_PATH or built-in)")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	return withService(cmd.Context(), func(service *domain.Service, cfg config.Config) error {
		path := cfg.CatalogPath
		if catalogFile != "" {
			path = catalogFile
		}
		activities, err := catalog.LoadFile(path)
		if err != nil {
			printError("load catalog", err)
			return err
		}

		seeded, err := service.SeedIfEmpty(cmd.Context(), activities)
		if err != nil {
			printError("seed", err)
			return err
		}
		if seeded {
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d activities\n", len(activities))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "store already has activities, nothing seeded")
		}
		return nil
	})
}
