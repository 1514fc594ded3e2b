package commands

import (
	"log/slog"

	"dtfcollect/lib/scrapers/dtf"
	"dtfcollect/lib/serviceutil"
	"dtfcollect/lib/universe"

	"github.com/spf13/cobra"
)

var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "Manages the work unit catalog.",
}

var importCatalog *string

func init() {
	importCatalog = universeImportCmd.Flags().String("catalog", "universe.db", "Catalog DSN to import into.")
	universeCmd.AddCommand(universeImportCmd)
	universeCmd.AddCommand(universeFetchCmd)
	rootCmd.AddCommand(universeCmd)
}

var universeImportCmd = &cobra.Command{
	Use:   "import <snapshot.json>",
	Short: "Imports a snapshot export into the catalog.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		units, err := universe.LoadSnapshot(args[0])
		if err != nil {
			serviceutil.Fatal("failed to load snapshot", err)
		}
		store, err := universe.Open(*importCatalog)
		if err != nil {
			serviceutil.Fatal("failed to open catalog", err)
		}
		defer store.Close()

		if err := store.Import(ctx, units); err != nil {
			serviceutil.Fatal("failed to import units", err)
		}
		slog.Info("imported work units", "count", len(units), "catalog", *importCatalog)
	},
}

var fetchCatalog *string

func init() {
	fetchCatalog = universeFetchCmd.Flags().String("catalog", "universe.db", "Catalog DSN to import into.")
}

var universeFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetches the applicant catalog live from the remote.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()

		provider := newProvider(cfg)
		sess, err := provider.Establish(ctx)
		if err != nil {
			serviceutil.Fatal("failed to establish session", err)
		}
		defer sess.Close()
		dtfSess := sess.(*dtf.Session)

		var units []universe.WorkUnit
		token := ""
		for {
			page, next, err := dtfSess.FetchApplicantsPage(ctx, token)
			if err != nil {
				serviceutil.Fatal("failed to fetch applicants page", err)
			}
			units = append(units, page...)
			if next == "" || len(page) == 0 {
				break
			}
			token = next
		}
		slog.Info("fetched applicants", "count", len(units))

		store, err := universe.Open(*fetchCatalog)
		if err != nil {
			serviceutil.Fatal("failed to open catalog", err)
		}
		defer store.Close()

		if err := store.Import(ctx, units); err != nil {
			serviceutil.Fatal("failed to import units", err)
		}
		slog.Info("imported work units", "count", len(units), "catalog", *fetchCatalog)
	},
}
