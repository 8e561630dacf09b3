package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/permit-cli/internal/db"
	"github.com/sells-group/permit-cli/internal/model"
)

// PostgresStore implements Store using pgxpool and PostGIS.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the per-request lookups.
var preparedStatements = map[string]string{
	"list_rules":          `SELECT jurisdiction_id, permit_type, permit_name, condition, description, triggers, inspections, form_url, active FROM permit_rules WHERE jurisdiction_id = $1 AND active ORDER BY permit_type`,
	"get_fee_schedule":    `SELECT jurisdiction_id, permit_type, form_id, base_fee, per_sqft, percent_of_value, min_days, max_days FROM fee_schedules WHERE jurisdiction_id = $1 AND permit_type = $2`,
	"locate_jurisdiction": locateSQL,
	"insert_run":          `INSERT INTO runs (id, kind, status, input, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"get_run":             `SELECT id, kind, status, input, result, error, created_at, updated_at FROM runs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS permit_rules (
	jurisdiction_id TEXT NOT NULL,
	permit_type     TEXT NOT NULL,
	permit_name     TEXT NOT NULL DEFAULT '',
	condition       TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	triggers        JSONB,
	inspections     JSONB,
	form_url        TEXT NOT NULL DEFAULT '',
	active          BOOLEAN NOT NULL DEFAULT true,
	PRIMARY KEY (jurisdiction_id, permit_type)
);

CREATE TABLE IF NOT EXISTS regulations (
	jurisdiction_id TEXT NOT NULL,
	code            TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	text            TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (jurisdiction_id, code)
);

CREATE INDEX IF NOT EXISTS idx_regulations_fts ON regulations
	USING GIN (to_tsvector('english', code || ' ' || title || ' ' || text));

CREATE TABLE IF NOT EXISTS fee_schedules (
	jurisdiction_id  TEXT NOT NULL,
	permit_type      TEXT NOT NULL,
	form_id          TEXT NOT NULL DEFAULT '',
	base_fee         DOUBLE PRECISION NOT NULL DEFAULT 0,
	per_sqft         DOUBLE PRECISION NOT NULL DEFAULT 0,
	percent_of_value DOUBLE PRECISION NOT NULL DEFAULT 0,
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
	content         BYTEA,
	pdf_url         TEXT NOT NULL DEFAULT '',
	portal_url      TEXT NOT NULL DEFAULT '',
	fields          JSONB NOT NULL DEFAULT '[]',
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (jurisdiction_id, permit_type)
);

CREATE TABLE IF NOT EXISTS jurisdictions (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL DEFAULT '',
	level    TEXT NOT NULL,
	state    TEXT NOT NULL DEFAULT '',
	contact  TEXT NOT NULL DEFAULT '',
	form_url TEXT NOT NULL DEFAULT '',
	boundary BYTEA,
	geom     geometry(MultiPolygon, 4326)
		GENERATED ALWAYS AS (ST_Multi(ST_GeomFromEWKB(boundary))) STORED
);

CREATE INDEX IF NOT EXISTS idx_jurisdictions_geom ON jurisdictions USING GIST (geom);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	input      JSONB NOT NULL,
	result     JSONB,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

// locateSQL picks the most specific authority containing the point, then
// the smallest by area.
const locateSQL = `SELECT id, name, level, contact, form_url FROM jurisdictions
	WHERE geom IS NOT NULL AND ST_Contains(geom, ST_SetSRID(ST_MakePoint($1, $2), 4326))
	ORDER BY CASE level WHEN 'city' THEN 0 WHEN 'county' THEN 1 ELSE 2 END, ST_Area(geom)
	LIMIT 1`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Rules ---

func (s *PostgresStore) ListRules(ctx context.Context, jurisdictionID string) ([]model.Rule, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["list_rules"], jurisdictionID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rules")
	}
	defer rows.Close()

	var out []model.Rule
	for rows.Next() {
		var (
			r                     model.Rule
			active                bool
			triggers, inspections []byte
		)
		if err := rows.Scan(&r.JurisdictionID, &r.PermitType, &r.PermitName, &r.Condition,
			&r.Description, &triggers, &inspections, &r.FormURL, &active); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rule")
		}
		r.Disabled = !active
		if r.Triggers, err = stringList(triggers); err != nil {
			return nil, err
		}
		if r.Inspections, err = stringList(inspections); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate rules")
}

func (s *PostgresStore) UpsertRules(ctx context.Context, rules []model.Rule) (int64, error) {
	rows := make([][]any, 0, len(rules))
	for _, r := range rules {
		triggers, err := marshalJSON(r.Triggers, "triggers")
		if err != nil {
			return 0, err
		}
		inspections, err := marshalJSON(r.Inspections, "inspections")
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{r.JurisdictionID, r.PermitType, r.PermitName, r.Condition,
			r.Description, triggers, inspections, r.FormURL, !r.Disabled})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "permit_rules",
		Columns: []string{"jurisdiction_id", "permit_type", "permit_name", "condition",
			"description", "triggers", "inspections", "form_url", "active"},
		ConflictKeys: []string{"jurisdiction_id", "permit_type"},
		KeepNonEmpty: []string{"form_url"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert rules")
}

// --- Regulations ---

func (s *PostgresStore) SearchRegulations(ctx context.Context, jurisdictionID, query string, limit int) ([]model.RegulatorySnippet, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT jurisdiction_id, code, title, text FROM regulations
		 WHERE jurisdiction_id = $1
		   AND ($2 = '' OR to_tsvector('english', code || ' ' || title || ' ' || text) @@ plainto_tsquery('english', $2))
		 ORDER BY ts_rank(to_tsvector('english', code || ' ' || title || ' ' || text), plainto_tsquery('english', $2)) DESC, code
		 LIMIT $3`,
		jurisdictionID, query, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search regulations")
	}
	defer rows.Close()

	var out []model.RegulatorySnippet
	for rows.Next() {
		var r model.RegulatorySnippet
		if err := rows.Scan(&r.JurisdictionID, &r.Code, &r.Title, &r.Text); err != nil {
			return nil, eris.Wrap(err, "postgres: scan regulation")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate regulations")
}

func (s *PostgresStore) UpsertRegulations(ctx context.Context, snippets []model.RegulatorySnippet) (int64, error) {
	rows := make([][]any, 0, len(snippets))
	for _, r := range snippets {
		rows = append(rows, []any{r.JurisdictionID, r.Code, r.Title, r.Text})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "regulations",
		Columns:      []string{"jurisdiction_id", "code", "title", "text"},
		ConflictKeys: []string{"jurisdiction_id", "code"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert regulations")
}

// --- Form templates ---

func (s *PostgresStore) GetFormTemplate(ctx context.Context, jurisdictionID, permitType string, maxAge time.Duration) (*model.FormTemplate, error) {
	var t model.FormTemplate
	var kind string
	var fields []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, jurisdiction_id, permit_type, url, kind, content, pdf_url, portal_url, fields, updated_at
		 FROM form_templates WHERE jurisdiction_id = $1 AND permit_type = $2`,
		jurisdictionID, permitType,
	).Scan(&t.ID, &t.JurisdictionID, &t.PermitType, &t.URL, &kind, &t.Content,
		&t.PDFURL, &t.PortalURL, &fields, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get form template")
	}
	if maxAge > 0 && time.Since(t.UpdatedAt) > maxAge {
		return nil, nil
	}
	t.Kind = model.FormKind(kind)
	if err := json.Unmarshal(fields, &t.Fields); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal form fields")
	}
	return &t, nil
}

func (s *PostgresStore) PutFormTemplate(ctx context.Context, tmpl *model.FormTemplate) error {
	if tmpl.ID == "" {
		tmpl.ID = uuid.New().String()
	}
	if tmpl.UpdatedAt.IsZero() {
		tmpl.UpdatedAt = time.Now().UTC()
	}
	fields, err := json.Marshal(fieldsOrEmpty(tmpl.Fields))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal form fields")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO form_templates (id, jurisdiction_id, permit_type, url, kind, content, pdf_url, portal_url, fields, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (jurisdiction_id, permit_type) DO UPDATE SET
		   url = $4, kind = $5, content = $6, pdf_url = $7, portal_url = $8, fields = $9, updated_at = $10`,
		tmpl.ID, tmpl.JurisdictionID, tmpl.PermitType, tmpl.URL, string(tmpl.Kind), tmpl.Content,
		tmpl.PDFURL, tmpl.PortalURL, fields, tmpl.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: put form template")
}

// --- Fees ---

func (s *PostgresStore) FeeSchedule(ctx context.Context, jurisdictionID, permitType string) (*model.FeeSchedule, error) {
	var f model.FeeSchedule
	err := s.pool.QueryRow(ctx, preparedStatements["get_fee_schedule"], jurisdictionID, permitType).
		Scan(&f.JurisdictionID, &f.PermitType, &f.FormID, &f.BaseFee, &f.PerSqFt,
			&f.PercentOfValue, &f.MinProcessingDays, &f.MaxProcessingDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get fee schedule")
	}
	return &f, nil
}

func (s *PostgresStore) UpsertFees(ctx context.Context, fees []model.FeeSchedule) (int64, error) {
	rows := make([][]any, 0, len(fees))
	for _, f := range fees {
		rows = append(rows, []any{f.JurisdictionID, f.PermitType, f.FormID, f.BaseFee, f.PerSqFt,
			f.PercentOfValue, f.MinProcessingDays, f.MaxProcessingDays})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "fee_schedules",
		Columns: []string{"jurisdiction_id", "permit_type", "form_id", "base_fee", "per_sqft",
			"percent_of_value", "min_days", "max_days"},
		ConflictKeys: []string{"jurisdiction_id", "permit_type"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert fees")
}

// --- Jurisdictions ---

func (s *PostgresStore) LocateJurisdiction(ctx context.Context, lat, lng float64) (*model.Authority, error) {
	var a model.Authority
	var level string
	err := s.pool.QueryRow(ctx, locateSQL, lng, lat).Scan(&a.ID, &a.Name, &level, &a.Contact, &a.FormURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: locate jurisdiction")
	}
	a.Level = model.JurisdictionLevel(level)
	return &a, nil
}

func (s *PostgresStore) UpsertJurisdiction(ctx context.Context, b model.Boundary) error {
	a := b.Authority
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jurisdictions (id, name, level, state, contact, form_url, boundary)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   name = $2, level = $3, state = $4,
		   contact = COALESCE(NULLIF($5, ''), jurisdictions.contact),
		   form_url = COALESCE(NULLIF($6, ''), jurisdictions.form_url),
		   boundary = COALESCE($7, jurisdictions.boundary)`,
		a.ID, a.Name, string(a.Level), b.State, a.Contact, a.FormURL, b.Geometry,
	)
	return eris.Wrapf(err, "postgres: upsert jurisdiction %s", a.ID)
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, kind model.RunKind, input any) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal run input")
	}
	_, err = s.pool.Exec(ctx, preparedStatements["insert_run"],
		id, string(kind), string(model.RunStatusRunning), inputJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result any, runErr error) error {
	resultJSON, err := marshalJSON(result, "run result")
	if err != nil {
		return err
	}
	status, errText := runOutcome(runErr)
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, result = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(status), resultJSON, errText, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var kind, status string
	var input, result []byte
	err := s.pool.QueryRow(ctx, preparedStatements["get_run"], runID).
		Scan(&r.ID, &kind, &status, &input, &result, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	r.Kind = model.RunKind(kind)
	r.Status = model.RunStatus(status)
	r.Input = input
	if len(result) > 0 {
		r.Result = result
	}
	return &r, nil
}

func fieldsOrEmpty(fs []model.FormField) []model.FormField {
	if fs == nil {
		return []model.FormField{}
	}
	return fs
}
