// Package coerce turns raw CSV string fields into typed record values.
//
// CSV exports carry no type metadata, so the target collection's declared
// schema (when the plan provides one) decides each field's type. Fields
// without a declaration fall back to the name-based heuristics the
// original exports were imported with: a JSON allow-list, t/true/f/false
// booleans, and numeric parsing guarded by an identifier-like exclusion
// set so account numbers and ticker symbols stay strings.
package coerce

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/dharwin/finpb/internal/plan"
)

// Options control per-run coercion behavior.
type Options struct {
	// PreserveID renames the source `id` column to LegacyIDField instead
	// of dropping it, so reference rewriting can map legacy identifiers
	// back to the new records.
	PreserveID bool

	// LegacyIDField is the target field for a preserved identifier.
	// Empty means plan.DefaultLegacyIDField.
	LegacyIDField string
}

// timestampFields are managed by the target store and never imported.
var timestampFields = map[string]bool{
	"created_at":  true,
	"updated_at":  true,
	"inserted_at": true,
}

// jsonFields is the default allow-list of JSON-valued columns, used when
// the collection schema doesn't declare the field.
var jsonFields = map[string]bool{
	"aliases":              true,
	"splits":               true,
	"mapping_config":       true,
	"raw_data":             true,
	"extraction_data":      true,
	"column_names":         true,
	"preferred_split_json": true,
}

// stringFields are numeric-looking values that must stay strings.
var stringFields = map[string]bool{
	"user_id":        true,
	"account_number": true,
	"symbol":         true,
	"code":           true,
	"currency":       true,
}

// Row converts one parsed CSV row into a typed record ready for creation.
//
// Empty values, the literal "null", and absent columns are omitted from
// the result entirely — the store must see "field not present", not
// "field cleared". A row that coerces to an empty record should be
// skipped by the caller.
func Row(row map[string]string, schema map[string]plan.FieldType, opts Options) map[string]any {
	legacyField := opts.LegacyIDField
	if legacyField == "" {
		legacyField = plan.DefaultLegacyIDField
	}

	record := make(map[string]any)
	for field, value := range row {
		if field == "id" {
			if opts.PreserveID && value != "" && value != "null" {
				record[legacyField] = value
			}
			continue
		}
		if timestampFields[field] {
			continue
		}
		if value == "" || value == "null" {
			continue
		}

		if typed, ok := Value(field, value, schema, legacyField); ok {
			record[field] = typed
		}
	}
	return record
}

// Value coerces a single non-empty field value. The second return is false
// only when the field should be omitted.
func Value(field, value string, schema map[string]plan.FieldType, legacyField string) (any, bool) {
	if declared, ok := schema[field]; ok {
		return coerceDeclared(declared, value), true
	}

	if jsonFields[field] {
		return coerceJSON(value), true
	}

	switch value {
	case "true", "t":
		return true, true
	case "false", "f":
		return false, true
	}

	if n, err := strconv.ParseFloat(value, 64); err == nil && numericField(field, legacyField) {
		return n, true
	}

	return strings.TrimSpace(value), true
}

// coerceDeclared applies an explicit schema type. Parse failures fall back
// to the raw string rather than erroring, matching the JSON allow-list
// behavior.
func coerceDeclared(t plan.FieldType, value string) any {
	switch t {
	case plan.FieldNumber:
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			return n
		}
	case plan.FieldBool:
		switch value {
		case "true", "t":
			return true
		case "false", "f":
			return false
		}
	case plan.FieldJSON:
		return coerceJSON(value)
	}
	return strings.TrimSpace(value)
}

// coerceJSON parses a value that looks like a JSON document; anything else
// (including malformed JSON) is kept as the raw string.
func coerceJSON(value string) any {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	return value
}

// numericField reports whether a numeric-looking value should actually be
// stored as a number. Date fields and identifier-like fields are excluded:
// a numeric merchant code is still a code.
func numericField(field, legacyField string) bool {
	if strings.Contains(field, "date") || strings.Contains(field, "_id") {
		return false
	}
	if stringFields[field] || field == legacyField {
		return false
	}
	return true
}
