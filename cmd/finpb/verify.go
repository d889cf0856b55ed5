package main

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/dharwin/finpb/internal/csvfile"
	"github.com/dharwin/finpb/internal/pocketbase"
	"github.com/dharwin/finpb/internal/ui"
)

var verifyAmountField string

var verifyCmd = &cobra.Command{
	Use:   "verify <collection> <csv-file>",
	Short: "Compare a CSV export against a live collection",
	Long: `Verify checks that an import landed intact: it compares the CSV
row count against the collection's record count, and sums the amount
column on both sides using exact decimal arithmetic, so float noise
in the stored values cannot mask or fake a discrepancy.

Rows with an empty amount contribute nothing to either sum, matching
how import omits empty fields.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, csvPath := args[0], args[1]

		content, err := os.ReadFile(csvPath) // #nosec G304 - user-provided export path is intentional
		if err != nil {
			return fmt.Errorf("reading %s: %w", csvPath, err)
		}
		rows := csvfile.Parse(string(content))

		csvSum := decimal.Zero
		csvWithAmount := 0
		for _, row := range rows {
			raw := row[verifyAmountField]
			if raw == "" || raw == "null" {
				continue
			}
			d, err := decimal.NewFromString(raw)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: unparseable %s %q in %s\n", verifyAmountField, raw, csvPath)
				continue
			}
			csvSum = csvSum.Add(d)
			csvWithAmount++
		}

		client, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		records, err := client.FullList(cmd.Context(), collection, pocketbase.ListOptions{
			Fields: "id," + verifyAmountField,
		})
		if err != nil {
			return fmt.Errorf("listing %s: %w", collection, err)
		}

		storeSum := decimal.Zero
		storeWithAmount := 0
		for _, rec := range records {
			v, ok := rec[verifyAmountField]
			if !ok || v == nil {
				continue
			}
			f, ok := v.(float64)
			if !ok {
				fmt.Fprintf(os.Stderr, "Warning: non-numeric %s on %s/%s\n", verifyAmountField, collection, rec.ID())
				continue
			}
			storeSum = storeSum.Add(decimal.NewFromFloat(f))
			storeWithAmount++
		}

		fmt.Println(ui.RenderHeader("verification: " + collection))
		fmt.Printf("  rows:    csv %d, store %d\n", len(rows), len(records))
		fmt.Printf("  amounts: csv %d summing %s, store %d summing %s\n",
			csvWithAmount, csvSum.String(), storeWithAmount, storeSum.String())
		fmt.Println(ui.RenderSeparator())

		ok := true
		if len(rows) != len(records) {
			ok = false
			fmt.Printf("  %s row count mismatch (%+d)\n", ui.RenderFail(ui.IconFail), len(records)-len(rows))
		}
		if !csvSum.Equal(storeSum) {
			ok = false
			fmt.Printf("  %s amount sum differs by %s\n", ui.RenderFail(ui.IconFail), storeSum.Sub(csvSum).String())
		}
		if !ok {
			return fmt.Errorf("%s does not match %s", collection, csvPath)
		}
		fmt.Printf("  %s %s matches %s\n", ui.RenderPass(ui.IconPass), collection, csvPath)
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyAmountField, "amount-field", "amount", "Numeric column to sum on both sides")
	rootCmd.AddCommand(verifyCmd)
}
