package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/hhbot/internal/migrate"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var list, status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres migrations (the sqlite backend migrates itself on open)",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list {
				files, err := migrate.Files()
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Fprintln(out, f)
				}
				return nil
			}

			cfg, log, err := loadConfig(opts)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if cfg.StorageDriver != "postgres" {
				return fmt.Errorf("migrate: STORAGE_DRIVER is %q, nothing to do", cfg.StorageDriver)
			}

			ctx := cmd.Context()
			a := &app{cfg: cfg, log: log}
			d, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			if status {
				ms, err := migrate.Status(ctx, d)
				if err != nil {
					return err
				}
				printMigrations(out, ms)
				return nil
			}

			applied, err := migrate.Up(ctx, d, log.Named("migrate"))
			if err != nil {
				return err
			}
			log.Info("migrations up to date", zap.Strings("applied", applied))
			fmt.Fprintf(out, "%d migration(s) applied\n", len(applied))
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "print embedded migration files and exit")
	cmd.Flags().BoolVar(&status, "status", false, "print which migrations the database has applied")
	cmd.MarkFlagsMutuallyExclusive("list", "status")
	return cmd
}

func printMigrations(w io.Writer, ms []migrate.Migration) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tAPPLIED")
	for _, m := range ms {
		at := "pending"
		if m.Applied() {
			at = m.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\n", m.Name, at)
	}
	_ = tw.Flush()
}
