package plan

// DefaultLegacyIDField is the record field that preserves the identifier
// from the prior store during an identifier-preserving import.
const DefaultLegacyIDField = "legacy_id"

// Default returns the migration plan for the personal-finance dataset:
// the Supabase CSV exports, their PocketBase collections, and the
// foreign-key fields that carry UUID references between them.
func Default() *Plan {
	return &Plan{
		LegacyIDField: DefaultLegacyIDField,

		Parents: []string{
			"accounts",
			"investment_accounts",
			"investment_managers",
			"chart_of_accounts",
			"category",
			"merchant",
			"profiles",
			"transactions",
			"products",
		},

		// Import order: independent tables, then tables referencing them,
		// then tables referencing those.
		Imports: []ImportFile{
			{File: "category_rows.csv", Collection: "category"},
			{File: "chart_of_accounts_rows.csv", Collection: "chart_of_accounts"},
			{File: "user_profile_rows.csv", Collection: "user_profile"},
			{File: "profiles_rows.csv", Collection: "profiles"},
			{File: "investment_managers_rows.csv", Collection: "investment_managers"},
			{File: "column_mappings_rows.csv", Collection: "column_mappings"},
			{File: "government_benefits_rows.csv", Collection: "government_benefits"},

			{File: "accounts_rows.csv", Collection: "accounts"},
			{File: "merchant_rows.csv", Collection: "merchant"},
			{File: "investment_accounts_rows.csv", Collection: "investment_accounts"},

			{File: "transactions_rows.csv", Collection: "transactions"},
			{File: "merchant_split_rules_rows.csv", Collection: "merchant_split_rules"},
			{File: "holdings_rows.csv", Collection: "holdings"},
			{File: "holding_snapshots_rows.csv", Collection: "holding_snapshots"},
			{File: "investment_transactions_rows.csv", Collection: "investment_transactions"},
			{File: "cash_transactions_rows.csv", Collection: "cash_transactions"},
			{File: "import_staging_rows.csv", Collection: "import_staging"},
			{File: "import_raw_data_rows.csv", Collection: "import_raw_data"},

			{File: "transaction_split_rows.csv", Collection: "transaction_split"},
			{File: "ai_extraction_logs_rows.csv", Collection: "ai_extraction_logs"},
		},

		Rules: []Rule{
			{Collection: "transactions", Field: "account_id", Ref: "accounts"},
			{Collection: "transactions", Field: "normalized_merchant_id", Ref: "merchant"},
			{Collection: "transactions", Field: "category_id", Ref: "category"},
			{Collection: "transactions", Field: "chart_of_account_id", Ref: "chart_of_accounts"},
			{Collection: "transactions", Field: "split_chart_of_account_id", Ref: "chart_of_accounts"},

			{Collection: "transaction_split", Field: "transaction_id", Ref: "transactions"},
			{Collection: "transaction_split", Field: "category_id", Ref: "category"},
			{Collection: "transaction_split", Field: "chart_of_account_id", Ref: "chart_of_accounts"},

			{Collection: "merchant", Field: "category_id", Ref: "category"},

			{Collection: "holdings", Field: "account_id", Ref: "investment_accounts"},
			{Collection: "holding_snapshots", Field: "account_id", Ref: "investment_accounts"},
			{Collection: "investment_transactions", Field: "account_id", Ref: "investment_accounts"},
			{Collection: "cash_transactions", Field: "account_id", Ref: "investment_accounts"},

			{Collection: "investment_accounts", Field: "manager_id", Ref: "investment_managers"},

			// Self-reference: account hierarchy, repaired post-import.
			{Collection: "chart_of_accounts", Field: "parent_id", Ref: "chart_of_accounts"},

			{Collection: "import_staging", Field: "account_id", Ref: "accounts"},
		},

		Collections: map[string]Collection{
			"merchant": {
				Fields: map[string]FieldType{
					"aliases": FieldJSON,
				},
			},
			"merchant_split_rules": {
				Fields: map[string]FieldType{
					"splits":               FieldJSON,
					"preferred_split_json": FieldJSON,
				},
			},
			"column_mappings": {
				Fields: map[string]FieldType{
					"mapping_config": FieldJSON,
					"column_names":   FieldJSON,
				},
			},
			"import_raw_data": {
				Fields: map[string]FieldType{
					"raw_data": FieldJSON,
				},
			},
			"ai_extraction_logs": {
				Fields: map[string]FieldType{
					"extraction_data": FieldJSON,
				},
			},
			"transactions": {
				KeyFields: []string{"date", "raw_merchant_name", "amount", "account_id", "type"},
			},
			"transaction_split": {
				KeyFields: []string{"transaction_id", "amount", "chart_of_account_id", "description"},
			},
		},
	}
}
