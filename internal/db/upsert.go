package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// UpsertConfig defines the parameters for a bulk upsert operation.
type UpsertConfig struct {
	Table        string   // target table, e.g. "permit_rules"
	Columns      []string // all columns being inserted, in row order
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns to update on conflict; nil = all non-conflict columns
	// KeepNonEmpty lists text columns whose stored value survives an
	// incoming empty string, so a sparse import does not blank a form URL
	// loaded earlier from a richer source.
	KeepNonEmpty []string
}

// BulkUpsert writes rows through a temp table: COPY into it, then
// INSERT ... SELECT ... ON CONFLICT DO UPDATE into the target. Rows that
// repeat a conflict key are collapsed first, the last one winning, since
// Postgres rejects a statement that updates the same row twice.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	keyIdx, err := cfg.keyIndexes()
	if err != nil {
		return 0, err
	}

	deduped := dedupeRows(rows, keyIdx)
	if dropped := len(rows) - len(deduped); dropped > 0 {
		zap.L().Debug("db: upsert: collapsed duplicate keys",
			zap.String("table", cfg.Table),
			zap.Int("dropped", dropped),
		)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tempTable := "_tmp_upsert_" + strings.ReplaceAll(cfg.Table, ".", "_")

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(),
		sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, cfg.Columns, pgx.CopyFromRows(deduped)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}

	tag, err := tx.Exec(ctx, upsertSQL(cfg, tempTable))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}

	return tag.RowsAffected(), nil
}

// keyIndexes validates cfg and returns the row positions of the conflict keys.
func (cfg UpsertConfig) keyIndexes() ([]int, error) {
	if len(cfg.Columns) == 0 {
		return nil, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return nil, eris.New("db: upsert: no conflict keys specified")
	}
	pos := make(map[string]int, len(cfg.Columns))
	for i, c := range cfg.Columns {
		pos[c] = i
	}
	idx := make([]int, len(cfg.ConflictKeys))
	for i, k := range cfg.ConflictKeys {
		p, ok := pos[k]
		if !ok {
			return nil, eris.Errorf("db: upsert: conflict key %q is not an inserted column", k)
		}
		idx[i] = p
	}
	return idx, nil
}

func (cfg UpsertConfig) updateCols() []string {
	if cfg.UpdateCols != nil {
		return cfg.UpdateCols
	}
	conflict := make(map[string]bool, len(cfg.ConflictKeys))
	for _, k := range cfg.ConflictKeys {
		conflict[k] = true
	}
	var out []string
	for _, c := range cfg.Columns {
		if !conflict[c] {
			out = append(out, c)
		}
	}
	return out
}

// upsertSQL builds the INSERT ... ON CONFLICT statement that moves rows
// from tempTable into the target. The target is aliased "t" so kept
// columns can refer to the stored value.
func upsertSQL(cfg UpsertConfig, tempTable string) string {
	keep := make(map[string]bool, len(cfg.KeepNonEmpty))
	for _, c := range cfg.KeepNonEmpty {
		keep[c] = true
	}

	cols := cfg.updateCols()
	setClauses := make([]string, 0, len(cols))
	for _, col := range cols {
		id := pgx.Identifier{col}.Sanitize()
		if keep[col] {
			setClauses = append(setClauses, fmt.Sprintf("%s = COALESCE(NULLIF(EXCLUDED.%s, ''), t.%s)", id, id, id))
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", id, id))
	}

	colList := quoteAndJoin(cfg.Columns)
	action := "DO NOTHING"
	if len(setClauses) > 0 {
		action = "DO UPDATE SET " + strings.Join(setClauses, ", ")
	}
	return fmt.Sprintf(
		"INSERT INTO %s AS t (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		sanitizeTable(cfg.Table),
		colList,
		colList,
		pgx.Identifier{tempTable}.Sanitize(),
		quoteAndJoin(cfg.ConflictKeys),
		action,
	)
}

// dedupeRows keeps the last row for each conflict key, preserving the
// order in which keys first appear.
func dedupeRows(rows [][]any, keyIdx []int) [][]any {
	pos := make(map[string]int, len(rows))
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		parts := make([]string, len(keyIdx))
		for i, k := range keyIdx {
			parts[i] = fmt.Sprint(row[k])
		}
		key := strings.Join(parts, "\x1f")
		if i, ok := pos[key]; ok {
			out[i] = row
			continue
		}
		pos[key] = len(out)
		out = append(out, row)
	}
	return out
}

// sanitizeTable handles schema-qualified table names like "public.permit_rules".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
