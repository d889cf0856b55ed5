package dedupe

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharwin/finpb/internal/pocketbase"
)

type fakeStore struct {
	records   []pocketbase.Record
	deleted   []string
	deleteErr map[string]error
}

func (f *fakeStore) FullList(context.Context, string, pocketbase.ListOptions) ([]pocketbase.Record, error) {
	return f.records, nil
}

func (f *fakeStore) Delete(_ context.Context, _ string, id string) error {
	if err := f.deleteErr[id]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

var txKeyFields = []string{"date", "raw_merchant_name", "amount", "account_id", "type"}

func tx(id, date, merchant string, amount float64) pocketbase.Record {
	return pocketbase.Record{
		"id":                id,
		"date":              date,
		"raw_merchant_name": merchant,
		"amount":            amount,
		"account_id":        "acc000000000001",
		"type":              "debit",
	}
}

func TestKey(t *testing.T) {
	rec := tx("rec1", "2024-03-01", "STARBUCKS", 4.5)
	assert.Equal(t, "2024-03-01|STARBUCKS|4.5|acc000000000001|debit", Key(rec, txKeyFields))

	// Absent fields key as empty, so two records both missing a field
	// still group together.
	assert.Equal(t, "||", Key(pocketbase.Record{}, []string{"a", "b", "c"}))
}

func TestRunFirstSeenSurvives(t *testing.T) {
	store := &fakeStore{
		records: []pocketbase.Record{
			tx("first0000000001", "2024-03-01", "STARBUCKS", 4.5),
			tx("second000000002", "2024-03-01", "STARBUCKS", 4.5),
		},
	}

	result, err := Run(context.Background(), store, "transactions", txKeyFields, Options{Log: &bytes.Buffer{}})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Unique)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, []string{"second000000002"}, store.deleted, "the record encountered first must survive")
}

// After a dedup pass, distinct keys equals surviving records: no key
// appears twice among survivors.
func TestRunInvariant(t *testing.T) {
	store := &fakeStore{
		records: []pocketbase.Record{
			tx("a00000000000001", "2024-03-01", "STARBUCKS", 4.5),
			tx("b00000000000002", "2024-03-01", "STARBUCKS", 4.5),
			tx("c00000000000003", "2024-03-01", "STARBUCKS", 4.5),
			tx("d00000000000004", "2024-03-02", "TIM HORTONS", 2.1),
			tx("e00000000000005", "2024-03-02", "TIM HORTONS", 2.1),
			tx("f00000000000006", "2024-03-03", "METRO", 88.2),
		},
	}

	result, err := Run(context.Background(), store, "transactions", txKeyFields, Options{Log: &bytes.Buffer{}})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Unique)
	assert.Equal(t, 3, result.Duplicates)
	assert.Equal(t, 3, result.Deleted)

	surviving := len(store.records) - result.Deleted
	assert.Equal(t, result.Unique, surviving)

	// Delete errors aside, survivors are exactly the first of each group.
	assert.ElementsMatch(t, []string{"b00000000000002", "c00000000000003", "e00000000000005"}, store.deleted)
}

func TestRunDistinctAmountsKept(t *testing.T) {
	store := &fakeStore{
		records: []pocketbase.Record{
			tx("a00000000000001", "2024-03-01", "STARBUCKS", 4.5),
			tx("b00000000000002", "2024-03-01", "STARBUCKS", 5.25),
		},
	}

	result, err := Run(context.Background(), store, "transactions", txKeyFields, Options{Log: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Unique)
	assert.Zero(t, result.Duplicates)
	assert.Empty(t, store.deleted)
}

func TestRunDeleteFailureContinues(t *testing.T) {
	store := &fakeStore{
		records: []pocketbase.Record{
			tx("keep00000000001", "2024-03-01", "STARBUCKS", 4.5),
			tx("fails0000000002", "2024-03-01", "STARBUCKS", 4.5),
			tx("works0000000003", "2024-03-01", "STARBUCKS", 4.5),
		},
		deleteErr: map[string]error{
			"fails0000000002": errors.New("boom"),
		},
	}

	var log bytes.Buffer
	result, err := Run(context.Background(), store, "transactions", txKeyFields, Options{Log: &log})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Duplicates)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, []string{"works0000000003"}, store.deleted)
	assert.Contains(t, log.String(), "fails0000000002")
}

func TestRunDryRunReportsGroups(t *testing.T) {
	store := &fakeStore{
		records: []pocketbase.Record{
			tx("a00000000000001", "2024-03-01", "STARBUCKS", 4.5),
			tx("b00000000000002", "2024-03-01", "STARBUCKS", 4.5),
			tx("c00000000000003", "2024-03-03", "METRO", 88.2),
		},
	}

	result, err := Run(context.Background(), store, "transactions", txKeyFields, Options{DryRun: true, Log: &bytes.Buffer{}})
	require.NoError(t, err)

	assert.Zero(t, result.Deleted)
	assert.Empty(t, store.deleted)
	require.Len(t, result.Groups, 1)
	assert.Equal(t, []string{"a00000000000001", "b00000000000002"}, result.Groups[0].IDs)
}

func TestRunNoKeyFields(t *testing.T) {
	_, err := Run(context.Background(), &fakeStore{}, "user_profile", nil, Options{})
	require.Error(t, err)
}
