package importer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharwin/finpb/internal/plan"
	"github.com/dharwin/finpb/internal/pocketbase"
)

type createCall struct {
	collection string
	fields     map[string]any
}

type fakeStore struct {
	existing  map[string][]pocketbase.Record
	createErr map[string]error // keyed by collection

	creates []createCall
	deletes []string // "collection/id" in call order
}

func (f *fakeStore) FullList(_ context.Context, collection string, _ pocketbase.ListOptions) ([]pocketbase.Record, error) {
	return f.existing[collection], nil
}

func (f *fakeStore) Create(_ context.Context, collection string, fields map[string]any) (pocketbase.Record, error) {
	if err := f.createErr[collection]; err != nil {
		return nil, err
	}
	f.creates = append(f.creates, createCall{collection: collection, fields: fields})
	return pocketbase.Record{"id": "new0000000000id"}, nil
}

func (f *fakeStore) Delete(_ context.Context, collection, id string) error {
	f.deletes = append(f.deletes, collection+"/"+id)
	return nil
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

func testPlan() *plan.Plan {
	return &plan.Plan{
		LegacyIDField: "legacy_id",
		Parents:       []string{"category"},
		Imports: []plan.ImportFile{
			{File: "category_rows.csv", Collection: "category"},
			{File: "transactions_rows.csv", Collection: "transactions"},
		},
		Rules: []plan.Rule{
			{Collection: "transactions", Field: "category_id", Ref: "category"},
		},
	}
}

func TestRunImportsInForwardOrder(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"category_rows.csv":     "id,name\nc-1,Groceries\nc-2,Dining\n",
		"transactions_rows.csv": "id,amount,category_id\nt-1,12.50,c-1\n",
	})
	store := &fakeStore{}

	summary, err := Run(context.Background(), store, testPlan(), Options{DataDir: dir, Log: &bytes.Buffer{}})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Imported)
	assert.Zero(t, summary.Failed)
	require.Len(t, store.creates, 3)
	// Parents first.
	assert.Equal(t, "category", store.creates[0].collection)
	assert.Equal(t, "category", store.creates[1].collection)
	assert.Equal(t, "transactions", store.creates[2].collection)
}

func TestRunCoercion(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"category_rows.csv":     "id,name\n", // header only
		"transactions_rows.csv": "id,amount,symbol,is_cleared,category_id\nt-1,12.50,3,t,c-9\n",
	})
	store := &fakeStore{}

	_, err := Run(context.Background(), store, testPlan(), Options{DataDir: dir, Log: &bytes.Buffer{}})
	require.NoError(t, err)

	require.Len(t, store.creates, 1)
	fields := store.creates[0].fields
	assert.Equal(t, 12.5, fields["amount"])
	assert.Equal(t, "3", fields["symbol"])
	assert.Equal(t, true, fields["is_cleared"])
	assert.Equal(t, "c-9", fields["category_id"])
	_, ok := fields["id"]
	assert.False(t, ok)
}

func TestRunEmptyAmountAbsent(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"category_rows.csv":     "id,name\n",
		"transactions_rows.csv": "id,amount,memo\nt-1,,lunch\n",
	})
	store := &fakeStore{}

	_, err := Run(context.Background(), store, testPlan(), Options{DataDir: dir, Log: &bytes.Buffer{}})
	require.NoError(t, err)

	require.Len(t, store.creates, 1)
	_, ok := store.creates[0].fields["amount"]
	assert.False(t, ok, "empty amount must be absent from the created record")
	assert.Equal(t, "lunch", store.creates[0].fields["memo"])
}

func TestRunPreserveIDs(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"category_rows.csv":     "id,name\n11111111-1111-1111-1111-111111111111,Groceries\n",
		"transactions_rows.csv": "id,amount\n",
	})
	store := &fakeStore{}

	_, err := Run(context.Background(), store, testPlan(), Options{DataDir: dir, PreserveIDs: true, Log: &bytes.Buffer{}})
	require.NoError(t, err)

	require.Len(t, store.creates, 1)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", store.creates[0].fields["legacy_id"])
}

func TestRunClearReverseOrder(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"category_rows.csv":     "id,name\n",
		"transactions_rows.csv": "id,amount\n",
	})
	store := &fakeStore{
		existing: map[string][]pocketbase.Record{
			"category":     {{"id": "cat000000000001"}},
			"transactions": {{"id": "tx0000000000001"}, {"id": "tx0000000000002"}},
		},
	}

	summary, err := Run(context.Background(), store, testPlan(), Options{DataDir: dir, Clear: true, Log: &bytes.Buffer{}})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Cleared)
	// Children cleared before parents.
	require.Len(t, store.deletes, 3)
	assert.Equal(t, "transactions/tx0000000000001", store.deletes[0])
	assert.Equal(t, "transactions/tx0000000000002", store.deletes[1])
	assert.Equal(t, "category/cat000000000001", store.deletes[2])
}

func TestRunPerRowFailures(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"category_rows.csv":     "id,name\n",
		"transactions_rows.csv": "id,amount\nt-1,1\nt-2,2\nt-3,3\nt-4,4\nt-5,5\n",
	})
	store := &fakeStore{
		createErr: map[string]error{
			"transactions": errors.New("validation failed"),
		},
	}

	var log bytes.Buffer
	summary, err := Run(context.Background(), store, testPlan(), Options{DataDir: dir, Log: &log})
	require.NoError(t, err, "per-row failures must not fail the run")

	assert.Equal(t, 5, summary.Failed)
	assert.Zero(t, summary.Imported)
	// Only the first few failures are logged.
	assert.Equal(t, DefaultMaxLoggedErrors, bytes.Count(log.Bytes(), []byte("validation failed")))
}

func TestRunMissingFileSkipped(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"transactions_rows.csv": "id,amount\nt-1,5\n",
	})
	store := &fakeStore{}

	var log bytes.Buffer
	summary, err := Run(context.Background(), store, testPlan(), Options{DataDir: dir, Log: &log})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.FilesMissing)
	assert.Equal(t, 1, summary.Imported)
	assert.Contains(t, log.String(), "category_rows.csv")
	require.Len(t, summary.Files, 2)
	assert.True(t, summary.Files[0].Missing)
}

func TestRunSkipsRowsThatCoerceToNothing(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"category_rows.csv":     "id,created_at\nc-1,2024-01-01\n",
		"transactions_rows.csv": "id,amount\n",
	})
	store := &fakeStore{}

	summary, err := Run(context.Background(), store, testPlan(), Options{DataDir: dir, Log: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.Zero(t, summary.Imported)
	assert.Empty(t, store.creates)
}
