package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/permit-cli/internal/jurisdiction"
	"github.com/sells-group/permit-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. SQLite has no
// spatial index, so jurisdiction lookups go through an in-memory
// jurisdiction.Index that is rebuilt after boundaries change.
type SQLiteStore struct {
	db *sql.DB

	mu    sync.Mutex
	index *jurisdiction.Index
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS permit_rules (
	jurisdiction_id TEXT NOT NULL,
	permit_type     TEXT NOT NULL,
	permit_name     TEXT NOT NULL DEFAULT '',
	condition       TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	triggers        TEXT,
	inspections     TEXT,
	form_url        TEXT NOT NULL DEFAULT '',
	active          INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (jurisdiction_id, permit_type)
);

CREATE TABLE IF NOT EXISTS regulations (
	jurisdiction_id TEXT NOT NULL,
	code            TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	text            TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (jurisdiction_id, code)
);

CREATE TABLE IF NOT EXISTS fee_schedules (
	jurisdiction_id  TEXT NOT NULL,
	permit_type      TEXT NOT NULL,
	form_id          TEXT NOT NULL DEFAULT '',
	base_fee         REAL NOT NULL DEFAULT 0,
	per_sqft         REAL NOT NULL DEFAULT 0,
	percent_of_value REAL NOT NULL DEFAULT 0,
	min_days         INTEGER NOT NULL DEFAULT 0,
	max_days         INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (jurisdiction_id, permit_type)
);

CREATE TABLE IF NOT EXISTS form_templates (
	id              TEXT PRIMARY KEY,
	jurisdiction_id TEXT NOT NULL,
	permit_type     TEXT NOT NULL,
	url             TEXT NOT NULL DEFAULT '',
	kind            TEXT NOT NULL DEFAULT '',
	content         BLOB,
	pdf_url         TEXT NOT NULL DEFAULT '',
	portal_url      TEXT NOT NULL DEFAULT '',
	fields          TEXT NOT NULL DEFAULT '[]',
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (jurisdiction_id, permit_type)
);

CREATE TABLE IF NOT EXISTS jurisdictions (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL DEFAULT '',
	level    TEXT NOT NULL,
	state    TEXT NOT NULL DEFAULT '',
	contact  TEXT NOT NULL DEFAULT '',
	form_url TEXT NOT NULL DEFAULT '',
	boundary BLOB
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	input      TEXT NOT NULL,
	result     TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Rules ---

func (s *SQLiteStore) ListRules(ctx context.Context, jurisdictionID string) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT jurisdiction_id, permit_type, permit_name, condition, description, triggers, inspections, form_url, active
		 FROM permit_rules WHERE jurisdiction_id = ? AND active = 1 ORDER BY permit_type`,
		jurisdictionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rules")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Rule
	for rows.Next() {
		var (
			r                     model.Rule
			active                bool
			triggers, inspections sql.NullString
		)
		if err := rows.Scan(&r.JurisdictionID, &r.PermitType, &r.PermitName, &r.Condition,
			&r.Description, &triggers, &inspections, &r.FormURL, &active); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rule")
		}
		r.Disabled = !active
		if r.Triggers, err = stringList([]byte(triggers.String)); err != nil {
			return nil, err
		}
		if r.Inspections, err = stringList([]byte(inspections.String)); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate rules")
}

func (s *SQLiteStore) UpsertRules(ctx context.Context, rules []model.Rule) (int64, error) {
	return s.inTx(ctx, "upsert rules", len(rules), func(tx *sql.Tx, i int) error {
		r := rules[i]
		triggers, err := marshalJSON(r.Triggers, "triggers")
		if err != nil {
			return err
		}
		inspections, err := marshalJSON(r.Inspections, "inspections")
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO permit_rules (jurisdiction_id, permit_type, permit_name, condition, description, triggers, inspections, form_url, active)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (jurisdiction_id, permit_type) DO UPDATE SET
			   permit_name = excluded.permit_name, condition = excluded.condition,
			   description = excluded.description, triggers = excluded.triggers,
			   inspections = excluded.inspections, active = excluded.active,
			   form_url = COALESCE(NULLIF(excluded.form_url, ''), permit_rules.form_url)`,
			r.JurisdictionID, r.PermitType, r.PermitName, r.Condition, r.Description,
			nullString(triggers), nullString(inspections), r.FormURL, !r.Disabled,
		)
		return err
	})
}

// --- Regulations ---

func (s *SQLiteStore) SearchRegulations(ctx context.Context, jurisdictionID, query string, limit int) ([]model.RegulatorySnippet, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT jurisdiction_id, code, title, text FROM regulations WHERE jurisdiction_id = ?`,
		jurisdictionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search regulations")
	}
	defer rows.Close() //nolint:errcheck

	var all []model.RegulatorySnippet
	for rows.Next() {
		var r model.RegulatorySnippet
		if err := rows.Scan(&r.JurisdictionID, &r.Code, &r.Title, &r.Text); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan regulation")
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate regulations")
	}
	return rankSnippets(all, query, limit), nil
}

func (s *SQLiteStore) UpsertRegulations(ctx context.Context, snippets []model.RegulatorySnippet) (int64, error) {
	return s.inTx(ctx, "upsert regulations", len(snippets), func(tx *sql.Tx, i int) error {
		r := snippets[i]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO regulations (jurisdiction_id, code, title, text) VALUES (?, ?, ?, ?)
			 ON CONFLICT (jurisdiction_id, code) DO UPDATE SET title = excluded.title, text = excluded.text`,
			r.JurisdictionID, r.Code, r.Title, r.Text,
		)
		return err
	})
}

// --- Form templates ---

func (s *SQLiteStore) GetFormTemplate(ctx context.Context, jurisdictionID, permitType string, maxAge time.Duration) (*model.FormTemplate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, jurisdiction_id, permit_type, url, kind, content, pdf_url, portal_url, fields, updated_at
		 FROM form_templates WHERE jurisdiction_id = ? AND permit_type = ?`,
		jurisdictionID, permitType,
	)

	var t model.FormTemplate
	var kind, fields string
	err := row.Scan(&t.ID, &t.JurisdictionID, &t.PermitType, &t.URL, &kind, &t.Content,
		&t.PDFURL, &t.PortalURL, &fields, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get form template")
	}
	if maxAge > 0 && time.Since(t.UpdatedAt) > maxAge {
		return nil, nil
	}
	t.Kind = model.FormKind(kind)
	if err := json.Unmarshal([]byte(fields), &t.Fields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal form fields")
	}
	return &t, nil
}

func (s *SQLiteStore) PutFormTemplate(ctx context.Context, tmpl *model.FormTemplate) error {
	if tmpl.ID == "" {
		tmpl.ID = uuid.New().String()
	}
	if tmpl.UpdatedAt.IsZero() {
		tmpl.UpdatedAt = time.Now().UTC()
	}
	fields, err := json.Marshal(fieldsOrEmpty(tmpl.Fields))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal form fields")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO form_templates (id, jurisdiction_id, permit_type, url, kind, content, pdf_url, portal_url, fields, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (jurisdiction_id, permit_type) DO UPDATE SET
		   url = excluded.url, kind = excluded.kind, content = excluded.content, pdf_url = excluded.pdf_url,
		   portal_url = excluded.portal_url, fields = excluded.fields, updated_at = excluded.updated_at`,
		tmpl.ID, tmpl.JurisdictionID, tmpl.PermitType, tmpl.URL, string(tmpl.Kind), tmpl.Content,
		tmpl.PDFURL, tmpl.PortalURL, string(fields), tmpl.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: put form template")
}

// --- Fees ---

func (s *SQLiteStore) FeeSchedule(ctx context.Context, jurisdictionID, permitType string) (*model.FeeSchedule, error) {
	var f model.FeeSchedule
	err := s.db.QueryRowContext(ctx,
		`SELECT jurisdiction_id, permit_type, form_id, base_fee, per_sqft, percent_of_value, min_days, max_days
		 FROM fee_schedules WHERE jurisdiction_id = ? AND permit_type = ?`,
		jurisdictionID, permitType,
	).Scan(&f.JurisdictionID, &f.PermitType, &f.FormID, &f.BaseFee, &f.PerSqFt,
		&f.PercentOfValue, &f.MinProcessingDays, &f.MaxProcessingDays)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get fee schedule")
	}
	return &f, nil
}

func (s *SQLiteStore) UpsertFees(ctx context.Context, fees []model.FeeSchedule) (int64, error) {
	return s.inTx(ctx, "upsert fees", len(fees), func(tx *sql.Tx, i int) error {
		f := fees[i]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO fee_schedules (jurisdiction_id, permit_type, form_id, base_fee, per_sqft, percent_of_value, min_days, max_days)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (jurisdiction_id, permit_type) DO UPDATE SET
			   form_id = excluded.form_id, base_fee = excluded.base_fee, per_sqft = excluded.per_sqft,
			   percent_of_value = excluded.percent_of_value, min_days = excluded.min_days, max_days = excluded.max_days`,
			f.JurisdictionID, f.PermitType, f.FormID, f.BaseFee, f.PerSqFt,
			f.PercentOfValue, f.MinProcessingDays, f.MaxProcessingDays,
		)
		return err
	})
}

// --- Jurisdictions ---

func (s *SQLiteStore) LocateJurisdiction(ctx context.Context, lat, lng float64) (*model.Authority, error) {
	idx, err := s.jurisdictionIndex(ctx)
	if err != nil {
		return nil, err
	}
	a, ok := idx.Locate(lat, lng)
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *SQLiteStore) jurisdictionIndex(ctx context.Context) (*jurisdiction.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		return s.index, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, level, state, contact, form_url, boundary FROM jurisdictions WHERE boundary IS NOT NULL`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load jurisdictions")
	}
	defer rows.Close() //nolint:errcheck

	var bs []model.Boundary
	for rows.Next() {
		var b model.Boundary
		var level string
		if err := rows.Scan(&b.Authority.ID, &b.Authority.Name, &level, &b.State,
			&b.Authority.Contact, &b.Authority.FormURL, &b.Geometry); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan jurisdiction")
		}
		b.Authority.Level = model.JurisdictionLevel(level)
		bs = append(bs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate jurisdictions")
	}

	idx, err := jurisdiction.NewIndex(bs)
	if err != nil {
		return nil, err
	}
	s.index = idx
	return idx, nil
}

func (s *SQLiteStore) UpsertJurisdiction(ctx context.Context, b model.Boundary) error {
	a := b.Authority
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jurisdictions (id, name, level, state, contact, form_url, boundary)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name, level = excluded.level, state = excluded.state,
		   contact = COALESCE(NULLIF(excluded.contact, ''), jurisdictions.contact),
		   form_url = COALESCE(NULLIF(excluded.form_url, ''), jurisdictions.form_url),
		   boundary = COALESCE(excluded.boundary, jurisdictions.boundary)`,
		a.ID, a.Name, string(a.Level), b.State, a.Contact, a.FormURL, b.Geometry,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert jurisdiction %s", a.ID)
	}
	s.mu.Lock()
	s.index = nil
	s.mu.Unlock()
	return nil
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, kind model.RunKind, input any) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal run input")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, status, input, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(kind), string(model.RunStatusRunning), string(inputJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &model.Run{
		ID:        id,
		Kind:      kind,
		Status:    model.RunStatusRunning,
		Input:     inputJSON,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result any, runErr error) error {
	resultJSON, err := marshalJSON(result, "run result")
	if err != nil {
		return err
	}
	status, errText := runOutcome(runErr)
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, result = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), nullString(resultJSON), errText, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, status, input, result, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

// helpers

// inTx runs fn for each of n items inside one transaction and returns n.
func (s *SQLiteStore) inTx(ctx context.Context, op string, n int, fn func(tx *sql.Tx, i int) error) (int64, error) {
	if n == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: %s: begin tx", op)
	}
	defer tx.Rollback() //nolint:errcheck

	for i := 0; i < n; i++ {
		if err := fn(tx, i); err != nil {
			return 0, eris.Wrapf(err, "sqlite: %s: row %d", op, i)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "sqlite: %s: commit", op)
	}
	return int64(n), nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func nullString(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var kind, status, input string
	var result sql.NullString

	err := row.Scan(&r.ID, &kind, &status, &input, &result, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "sqlite: run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Kind = model.RunKind(kind)
	r.Status = model.RunStatus(status)
	r.Input = json.RawMessage(input)
	if result.Valid {
		r.Result = json.RawMessage(result.String)
	}
	return &r, nil
}
