package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newMigrateCmd creates the 'migrate-annotations' subcommand.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-annotations",
		Short: "Upgrade every record's annotations to the current schema",
		Long: `Adds missing annotation sections and fields with their defaults, drops
deprecated keys and re-syncs the expert option list. Existing analyst values
and canonical data are left untouched. The store is saved once.`,
		Args: cobra.NoArgs,
		RunE: runMigrateCommand,
	}
}

func runMigrateCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	fs := appInstance.Store()
	ds, err := fs.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load store: %w", err)
	}
	if len(ds) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Store %s has no records; nothing to migrate\n", fs.Path())
		return nil
	}

	schema := appInstance.Config().Schema()
	upgraded := 0
	for key, rec := range ds {
		cd, changed := schema.Ensure(rec.CustomData)
		if !changed {
			continue
		}
		rec.CustomData = cd
		ds[key] = rec
		upgraded++
	}
	if err := fs.Save(cmd.Context(), ds); err != nil {
		return fmt.Errorf("save store: %w", err)
	}
	appInstance.Logger().Info("annotations migrated",
		zap.String("path", fs.Path()),
		zap.Int("records", len(ds)),
		zap.Int("upgraded", upgraded),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Upgraded %d of %d records in %s\n", upgraded, len(ds), fs.Path())
	return nil
}
