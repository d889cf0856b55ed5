package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dharwin/finpb/internal/dedupe"
	"github.com/dharwin/finpb/internal/ui"
)

var dedupeDryRun bool

var dedupeCmd = &cobra.Command{
	Use:   "dedupe [collection...]",
	Short: "Delete records sharing a natural key",
	Long: `Dedupe groups each collection's records by the natural key the plan
declares for it and deletes everything past the first record in each
group. The first record in retrieval order survives.

With no arguments every collection that declares key fields is
deduped. --dry-run lists the duplicate groups without deleting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPlan()
		if err != nil {
			return err
		}

		collections := args
		if len(collections) == 0 {
			// Import order keeps the output deterministic.
			for _, imp := range p.Imports {
				if len(p.KeyFields(imp.Collection)) > 0 {
					collections = append(collections, imp.Collection)
				}
			}
		}
		if len(collections) == 0 {
			return fmt.Errorf("no collection declares dedup key fields")
		}

		client, err := connect(cmd.Context())
		if err != nil {
			return err
		}

		opts := dedupe.Options{DryRun: dedupeDryRun}
		fmt.Println(ui.RenderHeader("deduplication"))
		totalDeleted, totalDuplicates := 0, 0
		for _, collection := range collections {
			keyFields := p.KeyFields(collection)
			if len(keyFields) == 0 {
				return fmt.Errorf("collection %s declares no key fields in the plan", collection)
			}

			res, err := dedupe.Run(cmd.Context(), client, collection, keyFields, opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: skipping %s: %v\n", collection, err)
				continue
			}
			totalDeleted += res.Deleted
			totalDuplicates += res.Duplicates

			if res.Duplicates == 0 {
				fmt.Printf("  %s %s: %d unique, no duplicates\n", ui.RenderPass(ui.IconPass), collection, res.Unique)
				continue
			}
			fmt.Printf("  %s %s: %d unique, %d duplicates, %d deleted\n",
				ui.RenderWarn(ui.IconWarn), collection, res.Unique, res.Duplicates, res.Deleted)
			if dedupeDryRun {
				for _, g := range res.Groups {
					fmt.Printf("    %s %s\n", ui.RenderMuted(fmt.Sprintf("%d×", len(g.IDs))), g.Key)
				}
			}
		}

		fmt.Println(ui.RenderSeparator())
		if dedupeDryRun {
			fmt.Println("  " + ui.RenderMuted("dry run: nothing deleted"))
		}
		fmt.Println("  " + ui.Count("duplicates", totalDuplicates, true))
		fmt.Println("  " + ui.Count("deleted", totalDeleted, false))
		return nil
	},
}

func init() {
	dedupeCmd.Flags().BoolVar(&dedupeDryRun, "dry-run", false, "List duplicate groups without deleting")
	rootCmd.AddCommand(dedupeCmd)
}
