package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dharwin/finpb/internal/refs"
	"github.com/dharwin/finpb/internal/ui"
)

var migrateDryRun bool

var migrateCmd = &cobra.Command{
	Use:   "migrate-refs",
	Short: "Rewrite legacy UUID references to current record IDs",
	Long: `Migrate-refs builds a legacy-ID lookup map for every parent
collection, then rewrites each foreign-key field the plan declares.

A field already holding a current record ID is left alone, so the
command is safe to re-run: a second pass writes nothing. UUIDs with
no lookup entry are reported and left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPlan()
		if err != nil {
			return err
		}
		client, err := connect(cmd.Context())
		if err != nil {
			return err
		}

		maps := refs.BuildLookupMaps(cmd.Context(), client, p.Parents, p.LegacyIDField, os.Stderr)

		opts := refs.Options{DryRun: migrateDryRun}
		var total refs.Result
		fmt.Println(ui.RenderHeader("reference migration"))
		for _, collection := range p.RuleCollections() {
			res, err := refs.RewriteCollection(cmd.Context(), client, collection, p.RulesFor(collection), maps, opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: skipping %s: %v\n", collection, err)
				continue
			}
			total.Add(res)

			icon := ui.RenderPass(ui.IconPass)
			if res.Errors > 0 || res.Unmapped > 0 {
				icon = ui.RenderWarn(ui.IconWarn)
			}
			fmt.Printf("  %s %s: %d updated, %d skipped, %d unmapped, %d errors\n",
				icon, collection, res.Updated, res.Skipped, res.Unmapped, res.Errors)
		}

		fmt.Println(ui.RenderSeparator())
		if migrateDryRun {
			fmt.Println("  " + ui.RenderMuted("dry run: nothing written"))
		}
		fmt.Println("  " + ui.Count("updated", total.Updated, false))
		fmt.Println("  " + ui.Count("unmapped", total.Unmapped, true))
		fmt.Println("  " + ui.Count("errors", total.Errors, true))
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Count rewrites without writing them")
	rootCmd.AddCommand(migrateCmd)
}
