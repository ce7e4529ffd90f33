// Command pkgsync loads the credit package catalog from YAML into the
// database and lists what is on sale.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/f2re/sale-photosession-bot/internal/config"
	"github.com/f2re/sale-photosession-bot/internal/infra/logging"
	"github.com/f2re/sale-photosession-bot/internal/infra/pgutils"
	"github.com/f2re/sale-photosession-bot/internal/repos/packages"
	pgpackages "github.com/f2re/sale-photosession-bot/internal/repos/packages/postgres"
	"github.com/f2re/sale-photosession-bot/pkg/envconf"
)

type pkgsyncConfig struct {
	Log      config.LogConfig
	Postgres config.PostgresConfig
}

func main() {
	root := &cobra.Command{
		Use:           "pkgsync",
		Short:         "Manage the credit package catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(syncCmd())
	root.AddCommand(listCmd())

	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func syncCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync <catalog.yaml>",
		Short: "Upsert the catalog and deactivate packages missing from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			//nolint:errcheck
			defer f.Close()

			catalog, err := parseCatalog(f)
			if err != nil {
				return err
			}

			if dryRun {
				renderPackages(cmd.OutOrStdout(), catalog)
				return nil
			}

			db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			//nolint:errcheck
			defer db.Close()

			var res packages.SyncResult

			err = pgutils.WithTx(cmd.Context(), db, func(tx *sql.Tx) error {
				var err error
				res, err = pgpackages.New(db).Sync(tx, catalog)
				return err
			})
			if err != nil {
				return fmt.Errorf("sync catalog: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "upserted %d, deactivated %d\n", res.Upserted, res.Deactivated)

			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and print the catalog without touching the database")

	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the active packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			//nolint:errcheck
			defer db.Close()

			list, err := pgpackages.New(db).ListActive(cmd.Context())
			if err != nil {
				return fmt.Errorf("list packages: %w", err)
			}

			renderPackages(cmd.OutOrStdout(), list)

			return nil
		},
	}
}

func openDB(ctx context.Context) (*sql.DB, error) {
	cfg := new(pkgsyncConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return nil, fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON(cfg.Log.Level)

	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	return db, nil
}

func renderPackages(w io.Writer, list []packages.Package) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Name", "Credits", "Price", "Active"})

	for _, p := range list {
		id := "-"
		if p.ID > 0 {
			id = strconv.FormatInt(p.ID, 10)
		}

		table.Append([]string{
			id,
			p.Name,
			strconv.FormatInt(p.CreditsGranted, 10),
			p.Price.StringFixed(2),
			strconv.FormatBool(p.IsActive),
		})
	}

	table.Render()
}
