// Package dedupe removes duplicate records using composite natural keys.
//
// The key fields approximate "same real-world event", not a guaranteed
// unique business key: two legitimately distinct cash purchases at the
// same merchant on the same day for the same amount will collide. That
// precision tradeoff is inherent to the data (there is no reliable unique
// identifier to dedupe on) and is why the dry-run mode exists.
package dedupe

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dharwin/finpb/internal/pocketbase"
)

// Store is the slice of the store API deduplication needs.
type Store interface {
	FullList(ctx context.Context, collection string, opts pocketbase.ListOptions) ([]pocketbase.Record, error)
	Delete(ctx context.Context, collection, id string) error
}

// Options control a dedup pass.
type Options struct {
	// DryRun reports duplicate groups without deleting anything.
	DryRun bool

	// Log receives per-record diagnostics. Defaults to os.Stderr.
	Log io.Writer
}

// Group is one natural key shared by more than one record.
type Group struct {
	Key string

	// IDs in retrieval order; the first is the survivor.
	IDs []string
}

// Result summarizes one collection's dedup.
type Result struct {
	Unique     int // distinct keys observed
	Duplicates int // records marked beyond the first per key
	Deleted    int // records actually deleted

	// Groups lists the colliding keys, retrieval-ordered.
	Groups []Group
}

// Key builds the composite key for a record. Field values are rendered
// with %v so numeric fields key consistently; absent fields render empty.
func Key(rec pocketbase.Record, fields []string) string {
	parts := make([]string, len(fields))
	for i, field := range fields {
		if v, ok := rec[field]; ok && v != nil {
			parts[i] = fmt.Sprintf("%v", v)
		}
	}
	return strings.Join(parts, "|")
}

// Run dedupes one collection: records are visited in retrieval order, the
// first record per key survives, and every later record with the same key
// is deleted. Per-record delete failures are logged and do not stop the
// batch.
func Run(ctx context.Context, store Store, collection string, keyFields []string, opts Options) (Result, error) {
	log := opts.Log
	if log == nil {
		log = os.Stderr
	}

	var result Result
	if len(keyFields) == 0 {
		return result, fmt.Errorf("no key fields configured for %s", collection)
	}

	records, err := store.FullList(ctx, collection, pocketbase.ListOptions{})
	if err != nil {
		return result, fmt.Errorf("fetching %s: %w", collection, err)
	}

	groups := make(map[string]int) // key -> index into result.Groups, -1 until a duplicate appears
	firstID := make(map[string]string)
	var doomed []string

	for _, rec := range records {
		key := Key(rec, keyFields)

		if _, seen := firstID[key]; !seen {
			firstID[key] = rec.ID()
			result.Unique++
			continue
		}

		result.Duplicates++
		doomed = append(doomed, rec.ID())

		idx, tracked := groups[key]
		if !tracked {
			result.Groups = append(result.Groups, Group{Key: key, IDs: []string{firstID[key]}})
			idx = len(result.Groups) - 1
			groups[key] = idx
		}
		result.Groups[idx].IDs = append(result.Groups[idx].IDs, rec.ID())
	}

	if opts.DryRun {
		return result, nil
	}

	for _, id := range doomed {
		if err := store.Delete(ctx, collection, id); err != nil {
			fmt.Fprintf(log, "Error deleting %s/%s: %v\n", collection, id, err)
			continue
		}
		result.Deleted++
	}

	return result, nil
}
