package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestDefaultCoversRuleRefs(t *testing.T) {
	p := Default()
	parents := make(map[string]bool)
	for _, c := range p.Parents {
		parents[c] = true
	}
	for _, r := range p.Rules {
		assert.True(t, parents[r.Ref], "rule %s.%s refs non-parent %s", r.Collection, r.Field, r.Ref)
	}
}

func TestValidateRejectsNonParentRef(t *testing.T) {
	p := &Plan{
		LegacyIDField: "legacy_id",
		Parents:       []string{"accounts"},
		Imports: []ImportFile{
			{File: "a.csv", Collection: "accounts"},
			{File: "t.csv", Collection: "transactions"},
		},
		Rules: []Rule{
			{Collection: "transactions", Field: "merchant_id", Ref: "merchant"},
		},
	}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a parent collection")
}

func TestValidateRejectsChildBeforeParent(t *testing.T) {
	p := &Plan{
		LegacyIDField: "legacy_id",
		Parents:       []string{"accounts"},
		Imports: []ImportFile{
			{File: "t.csv", Collection: "transactions"},
			{File: "a.csv", Collection: "accounts"},
		},
		Rules: []Rule{
			{Collection: "transactions", Field: "account_id", Ref: "accounts"},
		},
	}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before its parent")
}

func TestValidateAllowsSelfReference(t *testing.T) {
	p := &Plan{
		LegacyIDField: "legacy_id",
		Parents:       []string{"chart_of_accounts"},
		Imports: []ImportFile{
			{File: "coa.csv", Collection: "chart_of_accounts"},
		},
		Rules: []Rule{
			{Collection: "chart_of_accounts", Field: "parent_id", Ref: "chart_of_accounts"},
		},
	}
	assert.NoError(t, p.Validate())
}

func TestValidateRejectsCycle(t *testing.T) {
	// No import order can exist for mutually-referencing parents, so none
	// is given; the DAG check has to catch this on its own.
	p := &Plan{
		LegacyIDField: "legacy_id",
		Parents:       []string{"a", "b"},
		Rules: []Rule{
			{Collection: "a", Field: "b_id", Ref: "b"},
			{Collection: "b", Field: "a_id", Ref: "a"},
		},
	}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestRulesFor(t *testing.T) {
	p := Default()
	rules := p.RulesFor("transaction_split")
	require.Len(t, rules, 3)
	for _, r := range rules {
		assert.Equal(t, "transaction_split", r.Collection)
	}
	assert.Empty(t, p.RulesFor("user_profile"))
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	content := `
legacy_id_field: supabase_id
parents: [category]
imports:
  - file: category_rows.csv
    collection: category
  - file: merchant_rows.csv
    collection: merchant
rules:
  - collection: merchant
    field: category_id
    ref: category
collections:
  merchant:
    fields:
      aliases: json
    key_fields: [name, category_id]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "supabase_id", p.LegacyIDField)
	assert.Equal(t, FieldJSON, p.Schema("merchant")["aliases"])
	assert.Equal(t, []string{"name", "category_id"}, p.KeyFields("merchant"))
}

func TestLoadRejectsInvalidPlan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	content := `
parents: []
imports:
  - file: t.csv
    collection: transactions
rules:
  - collection: transactions
    field: account_id
    ref: accounts
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
