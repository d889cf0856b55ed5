// Package refs rewrites legacy UUID foreign-key references to current
// store identifiers, using lookup maps built from the parent collections'
// preserved legacy IDs.
package refs

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/dharwin/finpb/internal/plan"
	"github.com/dharwin/finpb/internal/pocketbase"
)

// Kind classifies a foreign-key field value by shape.
type Kind int

const (
	// KindEmpty is an absent or empty value; nothing to rewrite.
	KindEmpty Kind = iota

	// KindCurrentID already matches the target store's identifier format;
	// skipping it is what makes re-runs idempotent.
	KindCurrentID

	// KindLegacyUUID is a canonical UUID from the prior store.
	KindLegacyUUID

	// KindOther is neither shape — typically an integer-style key from a
	// pre-UUID era, resolved by raw lookup as a fallback.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindCurrentID:
		return "current-id"
	case KindLegacyUUID:
		return "legacy-uuid"
	default:
		return "other"
	}
}

var (
	uuidPattern      = regexp.MustCompile(`^(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	currentIDPattern = regexp.MustCompile(`^(?i)[a-z0-9]{15}$`)
)

// Classify determines a field value's kind. The UUID check runs before any
// lookup fallback: a value that is UUID-shaped is always treated as a
// legacy UUID, even if the raw string coincidentally appears as a lookup
// key.
func Classify(value string) Kind {
	switch {
	case value == "":
		return KindEmpty
	case currentIDPattern.MatchString(value):
		return KindCurrentID
	case uuidPattern.MatchString(value):
		return KindLegacyUUID
	default:
		return KindOther
	}
}

// Updater is the slice of the store API the rewriter needs.
type Updater interface {
	Lister
	Update(ctx context.Context, collection, id string, fields map[string]any) (pocketbase.Record, error)
}

// Options control a rewrite pass.
type Options struct {
	// DryRun stages and counts updates without writing them.
	DryRun bool

	// Log receives per-record diagnostics. Defaults to os.Stderr.
	Log io.Writer
}

// Result summarizes one collection's rewrite.
type Result struct {
	Updated  int // records persisted with at least one rewritten field
	Skipped  int // records with nothing to change
	Errors   int // records whose update call failed
	Unmapped int // field values with no lookup entry, left untouched
}

// Add accumulates another collection's result into this one.
func (r *Result) Add(other Result) {
	r.Updated += other.Updated
	r.Skipped += other.Skipped
	r.Errors += other.Errors
	r.Unmapped += other.Unmapped
}

// RewriteCollection rewrites every configured foreign-key field of one
// collection. Records with at least one resolved field get a single
// partial update carrying only the changed fields. Per-record update
// failures are logged and counted; the pass always finishes the whole
// collection.
//
// The caller must have built lookup maps for every rule's ref collection
// beforehand; rewriting one collection never changes another's map, so
// source order across collections doesn't matter.
func RewriteCollection(ctx context.Context, store Updater, collection string, rules []plan.Rule, maps Maps, opts Options) (Result, error) {
	log := opts.Log
	if log == nil {
		log = os.Stderr
	}

	var result Result

	records, err := store.FullList(ctx, collection, pocketbase.ListOptions{})
	if err != nil {
		return result, fmt.Errorf("fetching %s: %w", collection, err)
	}

	for _, rec := range records {
		updates := make(map[string]any)

		for _, rule := range rules {
			value := rec.GetString(rule.Field)

			switch Classify(value) {
			case KindEmpty, KindCurrentID:
				continue

			case KindLegacyUUID:
				if newID, ok := maps.Resolve(rule.Ref, value); ok {
					updates[rule.Field] = newID
				} else {
					fmt.Fprintf(log, "Warning: %s.%s: no mapping for UUID %s\n", collection, rule.Field, value)
					result.Unmapped++
				}

			case KindOther:
				// Integer-style legacy keys land here; try the raw value.
				if newID, ok := maps.Resolve(rule.Ref, value); ok {
					updates[rule.Field] = newID
				} else {
					result.Unmapped++
				}
			}
		}

		if len(updates) == 0 {
			result.Skipped++
			continue
		}

		if opts.DryRun {
			result.Updated++
			continue
		}

		if _, err := store.Update(ctx, collection, rec.ID(), updates); err != nil {
			fmt.Fprintf(log, "Error updating %s/%s: %v\n", collection, rec.ID(), err)
			result.Errors++
			continue
		}
		result.Updated++
	}

	return result, nil
}

// FieldStats tallies how one foreign-key field's values classify across a
// collection.
type FieldStats struct {
	Empty         int
	CurrentID     int
	MappedUUID    int
	UnmappedUUID  int
	MappedOther   int
	UnmappedOther int
}

// NeedsMigration reports whether any value in the field still wants
// rewriting.
func (s FieldStats) NeedsMigration() bool {
	return s.MappedUUID+s.UnmappedUUID+s.MappedOther > 0
}

// FieldReport is the analysis for one (collection, field) rule.
type FieldReport struct {
	Rule  plan.Rule
	Stats FieldStats
}

// AnalyzeCollection classifies every rule field of a collection without
// writing anything, for pre-migration scoping.
func AnalyzeCollection(ctx context.Context, store Lister, collection string, rules []plan.Rule, maps Maps) ([]FieldReport, error) {
	records, err := store.FullList(ctx, collection, pocketbase.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", collection, err)
	}

	reports := make([]FieldReport, len(rules))
	for i, rule := range rules {
		reports[i].Rule = rule
	}

	for _, rec := range records {
		for i, rule := range rules {
			value := rec.GetString(rule.Field)
			stats := &reports[i].Stats

			switch Classify(value) {
			case KindEmpty:
				stats.Empty++
			case KindCurrentID:
				stats.CurrentID++
			case KindLegacyUUID:
				if _, ok := maps.Resolve(rule.Ref, value); ok {
					stats.MappedUUID++
				} else {
					stats.UnmappedUUID++
				}
			case KindOther:
				if _, ok := maps.Resolve(rule.Ref, value); ok {
					stats.MappedOther++
				} else {
					stats.UnmappedOther++
				}
			}
		}
	}

	return reports, nil
}
