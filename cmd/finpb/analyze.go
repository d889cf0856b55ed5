package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dharwin/finpb/internal/refs"
	"github.com/dharwin/finpb/internal/ui"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Classify foreign-key fields without writing anything",
	Long: `Analyze scans every foreign-key field the plan declares and counts
how its values classify: empty, already a current record ID, a legacy
UUID with or without a lookup entry, or some other shape.

Use it before migrate-refs to scope the migration, and after to
confirm nothing mappable remains.`,
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

		fmt.Println(ui.RenderHeader("reference analysis"))
		needsWork := false
		for _, collection := range p.RuleCollections() {
			reports, err := refs.AnalyzeCollection(cmd.Context(), client, collection, p.RulesFor(collection), maps)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: skipping %s: %v\n", collection, err)
				continue
			}

			fmt.Printf("  %s\n", collection)
			for _, rep := range reports {
				icon := ui.RenderPass(ui.IconPass)
				if rep.Stats.NeedsMigration() {
					icon = ui.RenderWarn(ui.IconWarn)
					needsWork = true
				}
				fmt.Printf("    %s %s → %s: %d empty, %d current, %d mapped UUID, %d unmapped UUID, %d other (%d mapped)\n",
					icon, rep.Rule.Field, rep.Rule.Ref,
					rep.Stats.Empty, rep.Stats.CurrentID,
					rep.Stats.MappedUUID, rep.Stats.UnmappedUUID,
					rep.Stats.MappedOther+rep.Stats.UnmappedOther, rep.Stats.MappedOther)
			}
		}

		fmt.Println(ui.RenderSeparator())
		if needsWork {
			fmt.Println("  " + ui.RenderWarn("some fields still reference legacy IDs; run migrate-refs"))
		} else {
			fmt.Println("  " + ui.RenderPass("no migratable references remain"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
