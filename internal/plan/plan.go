// Package plan defines the migration plan: which CSV files feed which
// collections, in what order, which collections act as lookup tables, and
// which foreign-key fields must be rewritten from legacy UUIDs.
//
// A plan can be loaded from YAML so a schema change doesn't require a code
// change; Default returns the plan for the personal-finance dataset this
// tool was built for.
package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FieldType is an explicit per-field type declaration. When a collection
// schema declares a field, coercion follows the declaration instead of the
// name-based heuristics.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
	FieldJSON   FieldType = "json"
)

// Rule declares that Collection.Field holds an identifier resolving to a
// record in Ref.
type Rule struct {
	Collection string `yaml:"collection"`
	Field      string `yaml:"field"`
	Ref        string `yaml:"ref"`
}

// ImportFile pairs a CSV export with its target collection. Imports are
// listed in dependency order: parents before children.
type ImportFile struct {
	File       string `yaml:"file"`
	Collection string `yaml:"collection"`
}

// Collection holds optional per-collection configuration.
type Collection struct {
	// Fields maps field names to declared types, overriding coercion
	// heuristics for those fields.
	Fields map[string]FieldType `yaml:"fields,omitempty"`

	// KeyFields form the composite natural key used for deduplication.
	// Collections without key fields cannot be deduped.
	KeyFields []string `yaml:"key_fields,omitempty"`
}

// Plan is the full migration configuration.
type Plan struct {
	// LegacyIDField is the field on migrated records that preserves the
	// identifier from the prior store.
	LegacyIDField string `yaml:"legacy_id_field"`

	// Parents are the lookup collections whose legacy-to-current ID
	// mappings are built before any rewrite.
	Parents []string `yaml:"parents"`

	// Imports lists CSV files in import order.
	Imports []ImportFile `yaml:"imports"`

	// Rules are the foreign-key fields to rewrite.
	Rules []Rule `yaml:"rules"`

	// Collections holds per-collection schemas and dedup keys.
	Collections map[string]Collection `yaml:"collections,omitempty"`
}

// Load reads a plan from a YAML file. Fields left unset fall back to the
// defaults from Default.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path) // #nosec G304 - user-provided plan path is intentional
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}

	p := &Plan{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	if p.LegacyIDField == "" {
		p.LegacyIDField = DefaultLegacyIDField
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return p, nil
}

// Schema returns the declared field schema for a collection, or nil when
// the plan declares none and coercion should rely on heuristics alone.
func (p *Plan) Schema(collection string) map[string]FieldType {
	return p.Collections[collection].Fields
}

// KeyFields returns the dedup key fields for a collection, or nil.
func (p *Plan) KeyFields(collection string) []string {
	return p.Collections[collection].KeyFields
}

// RulesFor returns the rewrite rules whose source is the given collection.
func (p *Plan) RulesFor(collection string) []Rule {
	var rules []Rule
	for _, r := range p.Rules {
		if r.Collection == collection {
			rules = append(rules, r)
		}
	}
	return rules
}

// RuleCollections returns the distinct source collections of the plan's
// rules, in first-appearance order.
func (p *Plan) RuleCollections() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range p.Rules {
		if !seen[r.Collection] {
			seen[r.Collection] = true
			out = append(out, r.Collection)
		}
	}
	return out
}

// Validate checks the structural invariants the migration depends on:
//
//   - every rule's ref collection is a declared parent, so its lookup map
//     exists before rewriting starts;
//   - the import order lists every referenced collection before the
//     collections that reference it (self-references exempt, since those
//     links are repaired by the rewrite pass after import);
//   - the rules restricted to parent collections form a DAG, so the import
//     order can exist at all.
func (p *Plan) Validate() error {
	if p.LegacyIDField == "" {
		return fmt.Errorf("legacy_id_field must be set")
	}

	parents := make(map[string]bool, len(p.Parents))
	for _, c := range p.Parents {
		parents[c] = true
	}

	position := make(map[string]int, len(p.Imports))
	for i, imp := range p.Imports {
		if _, dup := position[imp.Collection]; dup {
			return fmt.Errorf("collection %s imported twice", imp.Collection)
		}
		position[imp.Collection] = i
	}

	for _, r := range p.Rules {
		if !parents[r.Ref] {
			return fmt.Errorf("rule %s.%s references %s, which is not a parent collection", r.Collection, r.Field, r.Ref)
		}
		if r.Collection == r.Ref {
			continue
		}
		src, srcOK := position[r.Collection]
		ref, refOK := position[r.Ref]
		if srcOK && refOK && ref > src {
			return fmt.Errorf("import order lists %s before its parent %s (rule %s.%s)", r.Collection, r.Ref, r.Collection, r.Field)
		}
	}

	return p.checkAcyclic()
}

// checkAcyclic rejects reference cycles among parent collections, ignoring
// self-edges.
func (p *Plan) checkAcyclic() error {
	parents := make(map[string]bool, len(p.Parents))
	for _, c := range p.Parents {
		parents[c] = true
	}

	edges := make(map[string][]string)
	for _, r := range p.Rules {
		if r.Collection == r.Ref || !parents[r.Collection] {
			continue
		}
		edges[r.Collection] = append(edges[r.Collection], r.Ref)
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int)

	var visit func(string) error
	visit = func(node string) error {
		switch state[node] {
		case visiting:
			return fmt.Errorf("reference cycle through parent collection %s", node)
		case done:
			return nil
		}
		state[node] = visiting
		for _, next := range edges[node] {
			if err := visit(next); err != nil {
				return err
			}
		}
		state[node] = done
		return nil
	}

	for node := range edges {
		if err := visit(node); err != nil {
			return err
		}
	}
	return nil
}
