package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dharwin/finpb/internal/importer"
	"github.com/dharwin/finpb/internal/ui"
)

var (
	importDataDir     string
	importPreserveIDs bool
	importClear       bool
	importYes         bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import CSV exports into the store",
	Long: `Import loads every CSV file named by the plan into its collection,
parents before children, so reference rewriting can run afterwards.

Rows are coerced per the plan's field schemas; a row that fails to
create is counted and skipped, never fatal. With --preserve-ids each
source id is kept on the record under the plan's legacy-ID field,
which migrate-refs depends on.

--clear deletes every existing record first, children before parents.
It asks for confirmation unless --yes is given or stdin is not a
terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPlan()
		if err != nil {
			return err
		}

		if importClear && !importYes && term.IsTerminal(int(os.Stdin.Fd())) {
			if !confirmClear(len(p.Imports)) {
				fmt.Fprintln(os.Stderr, "Import cancelled.")
				return nil
			}
		}

		client, err := connect(cmd.Context())
		if err != nil {
			return err
		}

		summary, err := importer.Run(cmd.Context(), client, p, importer.Options{
			DataDir:     importDataDir,
			PreserveIDs: importPreserveIDs,
			Clear:       importClear,
		})
		if err != nil {
			return err
		}

		fmt.Println(ui.RenderHeader("import summary"))
		for _, fr := range summary.Files {
			switch {
			case fr.Missing:
				fmt.Printf("  %s %s %s\n", ui.RenderMuted(ui.IconSkip), fr.File, ui.RenderMuted("(missing)"))
			case fr.Failed > 0:
				fmt.Printf("  %s %s → %s: %d imported, %d failed\n",
					ui.RenderWarn(ui.IconWarn), fr.File, fr.Collection, fr.Imported, fr.Failed)
			default:
				fmt.Printf("  %s %s → %s: %d imported\n",
					ui.RenderPass(ui.IconPass), fr.File, fr.Collection, fr.Imported)
			}
		}
		fmt.Println(ui.RenderSeparator())
		if summary.Cleared > 0 {
			fmt.Println("  " + ui.Count("cleared", summary.Cleared, false))
		}
		fmt.Println("  " + ui.Count("imported", summary.Imported, false))
		fmt.Println("  " + ui.Count("failed", summary.Failed, true))
		if summary.FilesMissing > 0 {
			fmt.Println("  " + ui.RenderWarn(fmt.Sprintf("files missing: %d", summary.FilesMissing)))
		}
		return nil
	},
}

func confirmClear(collections int) bool {
	confirmed := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Delete every record in %d collections before importing?", collections)).
			Affirmative("Clear and import").
			Negative("Cancel").
			Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false
		}
		FatalError("confirmation prompt failed: %v", err)
	}
	return confirmed
}

func init() {
	importCmd.Flags().StringVar(&importDataDir, "data-dir", "data", "Directory holding the CSV export files")
	importCmd.Flags().BoolVar(&importPreserveIDs, "preserve-ids", false, "Keep source ids under the plan's legacy-ID field")
	importCmd.Flags().BoolVar(&importClear, "clear", false, "Delete all existing records first (children before parents)")
	importCmd.Flags().BoolVarP(&importYes, "yes", "y", false, "Skip the --clear confirmation prompt")
	rootCmd.AddCommand(importCmd)
}
