package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rulesConfig() UpsertConfig {
	return UpsertConfig{
		Table:        "permit_rules",
		Columns:      []string{"jurisdiction_id", "permit_type", "condition"},
		ConflictKeys: []string{"jurisdiction_id", "permit_type"},
	}
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, rulesConfig(), nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  UpsertConfig
		want string
	}{
		{"no columns", UpsertConfig{Table: "permit_rules", ConflictKeys: []string{"id"}}, "no columns specified"},
		{"no keys", UpsertConfig{Table: "permit_rules", Columns: []string{"id", "name"}}, "no conflict keys specified"},
		{"unknown key", UpsertConfig{Table: "permit_rules", Columns: []string{"id"}, ConflictKeys: []string{"code"}}, `conflict key "code"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BulkUpsert(context.Background(), nil, tt.cfg, [][]any{{1, "a"}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_permit_rules" \(LIKE "permit_rules" INCLUDING DEFAULTS\)`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_permit_rules"}, []string{"jurisdiction_id", "permit_type", "condition"}).
		WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("jurisdiction_id", "permit_type"\) DO UPDATE SET "condition" = EXCLUDED."condition"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	rows := [][]any{
		{"austin-tx", "building", `scope == "addition"`},
		{"austin-tx", "electrical", `has(work_types, "electrical")`},
		{"austin-tx", "building", `in(scope, "addition", "new_construction")`},
	}
	n, err := BulkUpsert(context.Background(), mock, rulesConfig(), rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_permit_rules"}, []string{"jurisdiction_id", "permit_type", "condition"}).
		WillReturnError(fmt.Errorf("copy failed"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, rulesConfig(), [][]any{{"a", "b", "c"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for permit_rules")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL(t *testing.T) {
	cfg := UpsertConfig{
		Table:        "permit_rules",
		Columns:      []string{"jurisdiction_id", "permit_type", "condition", "form_url"},
		ConflictKeys: []string{"jurisdiction_id", "permit_type"},
		KeepNonEmpty: []string{"form_url"},
	}
	assert.Equal(t,
		`INSERT INTO "permit_rules" AS t ("jurisdiction_id", "permit_type", "condition", "form_url") `+
			`SELECT "jurisdiction_id", "permit_type", "condition", "form_url" FROM "_tmp" `+
			`ON CONFLICT ("jurisdiction_id", "permit_type") DO UPDATE SET "condition" = EXCLUDED."condition", `+
			`"form_url" = COALESCE(NULLIF(EXCLUDED."form_url", ''), t."form_url")`,
		upsertSQL(cfg, "_tmp"))

	keysOnly := UpsertConfig{Table: "tags", Columns: []string{"id"}, ConflictKeys: []string{"id"}}
	assert.Contains(t, upsertSQL(keysOnly, "_tmp"), "ON CONFLICT (\"id\") DO NOTHING")
}

func TestDedupeRows(t *testing.T) {
	rows := [][]any{
		{"austin-tx", "building", "v1"},
		{"dallas-tx", "building", "v1"},
		{"austin-tx", "building", "v2"},
		{"austin-tx", "electrical", "v1"},
	}
	got := dedupeRows(rows, []int{0, 1})
	assert.Equal(t, [][]any{
		{"austin-tx", "building", "v2"},
		{"dallas-tx", "building", "v1"},
		{"austin-tx", "electrical", "v1"},
	}, got)
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"public.permit_rules", `"public"."permit_rules"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"id", "name", "value"})
	assert.Equal(t, `"id", "name", "value"`, result)
}
