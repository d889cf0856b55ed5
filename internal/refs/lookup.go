package refs

import (
	"context"
	"fmt"
	"io"

	"github.com/dharwin/finpb/internal/pocketbase"
)

// Lister is the slice of the store API the lookup builder needs.
type Lister interface {
	FullList(ctx context.Context, collection string, opts pocketbase.ListOptions) ([]pocketbase.Record, error)
}

// Maps holds the legacy-to-current identifier mapping for each parent
// collection. Built fresh per run; stale the moment records are recreated.
type Maps map[string]map[string]string

// Resolve looks up a legacy identifier in one collection's map.
func (m Maps) Resolve(collection, legacyID string) (string, bool) {
	id, ok := m[collection][legacyID]
	return id, ok
}

// BuildLookupMaps fetches (id, legacyField) pairs for every parent
// collection and inverts them into legacy→current maps.
//
// A collection whose fetch fails (absent in the target store, say) gets an
// empty map and a warning: it only degrades what the rewriter can resolve,
// it doesn't sink the run. Records without a legacy identifier contribute
// no entry — they were born in the new store.
func BuildLookupMaps(ctx context.Context, store Lister, parents []string, legacyField string, log io.Writer) Maps {
	maps := make(Maps, len(parents))

	for _, collection := range parents {
		records, err := store.FullList(ctx, collection, pocketbase.ListOptions{
			Fields: "id," + legacyField,
		})
		if err != nil {
			fmt.Fprintf(log, "Warning: skipping lookup map for %s: %v\n", collection, err)
			maps[collection] = map[string]string{}
			continue
		}

		m := make(map[string]string, len(records))
		for _, rec := range records {
			legacy := rec.GetString(legacyField)
			if legacy == "" {
				continue
			}
			m[legacy] = rec.ID()
		}
		maps[collection] = m
	}

	return maps
}
