// Package importer orchestrates the CSV import: optional clearing of the
// target collections in reverse dependency order, then file-by-file
// parse → coerce → create in forward dependency order, so every parent
// record exists before the children that reference it.
package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dharwin/finpb/internal/coerce"
	"github.com/dharwin/finpb/internal/csvfile"
	"github.com/dharwin/finpb/internal/plan"
	"github.com/dharwin/finpb/internal/pocketbase"
)

// DefaultMaxLoggedErrors caps per-file error logging so a systematically
// failing file doesn't flood the output.
const DefaultMaxLoggedErrors = 3

// Store is the slice of the store API the orchestrator needs.
type Store interface {
	FullList(ctx context.Context, collection string, opts pocketbase.ListOptions) ([]pocketbase.Record, error)
	Create(ctx context.Context, collection string, fields map[string]any) (pocketbase.Record, error)
	Delete(ctx context.Context, collection, id string) error
}

// Options control an import run.
type Options struct {
	// DataDir holds the CSV export files.
	DataDir string

	// PreserveIDs renames each source id column to the plan's legacy-ID
	// field instead of dropping it, enabling reference rewriting later.
	PreserveIDs bool

	// Clear deletes all existing records first, children before parents.
	Clear bool

	// MaxLoggedErrors caps logged create failures per file.
	// Zero means DefaultMaxLoggedErrors.
	MaxLoggedErrors int

	// Log receives progress and diagnostics. Defaults to os.Stderr.
	Log io.Writer
}

// FileResult is the outcome for one CSV file.
type FileResult struct {
	File       string
	Collection string
	Imported   int
	Failed     int
	Missing    bool // file not found (or unreadable) in DataDir
}

// Summary accumulates totals across the whole run.
type Summary struct {
	Imported     int
	Failed       int
	FilesMissing int
	Cleared      int
	Files        []FileResult
}

// Run executes the import described by the plan. Per-row failures are
// counted and never stop a file; a missing file is skipped with a note;
// nothing short of a cancelled context aborts the remaining files.
func Run(ctx context.Context, store Store, p *plan.Plan, opts Options) (*Summary, error) {
	log := opts.Log
	if log == nil {
		log = os.Stderr
	}
	maxLogged := opts.MaxLoggedErrors
	if maxLogged == 0 {
		maxLogged = DefaultMaxLoggedErrors
	}

	summary := &Summary{}

	if opts.Clear {
		summary.Cleared = clearAll(ctx, store, p, log)
	}

	coerceOpts := coerce.Options{
		PreserveID:    opts.PreserveIDs,
		LegacyIDField: p.LegacyIDField,
	}

	for _, imp := range p.Imports {
		fr := importFile(ctx, store, imp, coerceOpts, p.Schema(imp.Collection), opts.DataDir, maxLogged, log)
		summary.Files = append(summary.Files, fr)
		summary.Imported += fr.Imported
		summary.Failed += fr.Failed
		if fr.Missing {
			summary.FilesMissing++
		}
	}

	return summary, nil
}

// clearAll empties every target collection, children before parents, so
// relation constraints on delete are satisfied. Failures degrade to
// warnings: a collection that can't be cleared will surface again as
// create conflicts, which are already handled per record.
func clearAll(ctx context.Context, store Store, p *plan.Plan, log io.Writer) int {
	cleared := 0
	for i := len(p.Imports) - 1; i >= 0; i-- {
		collection := p.Imports[i].Collection

		records, err := store.FullList(ctx, collection, pocketbase.ListOptions{Fields: "id"})
		if err != nil {
			fmt.Fprintf(log, "Warning: could not clear %s: %v\n", collection, err)
			continue
		}

		for _, rec := range records {
			if err := store.Delete(ctx, collection, rec.ID()); err != nil {
				fmt.Fprintf(log, "Warning: could not delete %s/%s: %v\n", collection, rec.ID(), err)
				continue
			}
			cleared++
		}
	}
	return cleared
}

// importFile imports one CSV file into its collection.
func importFile(ctx context.Context, store Store, imp plan.ImportFile, coerceOpts coerce.Options, schema map[string]plan.FieldType, dataDir string, maxLogged int, log io.Writer) FileResult {
	fr := FileResult{File: imp.File, Collection: imp.Collection}

	path := filepath.Join(dataDir, imp.File)
	content, err := os.ReadFile(path) // #nosec G304 - data dir is user configuration
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(log, "Skipping %s (file not found)\n", imp.File)
		} else {
			fmt.Fprintf(log, "Error reading %s: %v\n", imp.File, err)
		}
		fr.Missing = true
		return fr
	}

	for _, row := range csvfile.Parse(string(content)) {
		// Rows that coerce to nothing (only id/timestamp/null columns)
		// are not worth an empty create call.
		record := coerce.Row(row, schema, coerceOpts)
		if len(record) == 0 {
			continue
		}

		if _, err := store.Create(ctx, imp.Collection, record); err != nil {
			fr.Failed++
			if fr.Failed <= maxLogged {
				fmt.Fprintf(log, "Error creating %s record: %v\n", imp.Collection, err)
			}
			continue
		}
		fr.Imported++
	}

	return fr
}
