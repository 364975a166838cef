package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/openhouse-labs/scheme-intel/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// Single writer connection keeps transaction serialization in-process
	// instead of surfacing SQLITE_BUSY to callers.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS facts (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	development_id TEXT NOT NULL,
	house_type     TEXT NOT NULL,
	unit_id        TEXT NOT NULL DEFAULT '',
	key            TEXT NOT NULL,
	value          TEXT NOT NULL,
	unit           TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL,
	confidence     REAL NOT NULL,
	pass_id        TEXT NOT NULL DEFAULT '',
	recorded_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS passes (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	development_id TEXT NOT NULL,
	house_type     TEXT NOT NULL,
	method         TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'open',
	outcome        TEXT,
	fact_count     INTEGER NOT NULL DEFAULT 0,
	cost_cents     INTEGER NOT NULL DEFAULT 0,
	started_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	finalized_at   DATETIME
);

CREATE TABLE IF NOT EXISTS profiles (
	id               TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL,
	development_id   TEXT NOT NULL,
	house_type       TEXT NOT NULL,
	version          INTEGER NOT NULL,
	is_current       INTEGER NOT NULL DEFAULT 0,
	quality_score    REAL NOT NULL DEFAULT 0,
	facts            TEXT NOT NULL,
	passes           TEXT NOT NULL,
	source_documents TEXT,
	superseded_by    TEXT,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(tenant_id, development_id, house_type, version)
);

CREATE INDEX IF NOT EXISTS idx_facts_scope_key ON facts(tenant_id, development_id, house_type, key);
CREATE INDEX IF NOT EXISTS idx_facts_pass ON facts(pass_id);
CREATE INDEX IF NOT EXISTS idx_passes_scope ON passes(tenant_id, development_id, house_type);
CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_current
	ON profiles(tenant_id, development_id, house_type) WHERE is_current = 1;
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertFact(ctx context.Context, fact model.Fact) (*model.Fact, error) {
	if err := fact.Scope.Validate(); err != nil {
		return nil, err
	}
	fact.ID = uuid.New().String()
	if fact.RecordedAt.IsZero() {
		fact.RecordedAt = time.Now().UTC()
	}

	valueJSON, err := json.Marshal(fact.Value)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal fact value")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO facts (id, tenant_id, development_id, house_type, unit_id, key, value, unit, source, confidence, pass_id, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fact.ID, fact.Scope.TenantID, fact.Scope.DevelopmentID, fact.Scope.HouseType, fact.Scope.UnitID,
		fact.Key, string(valueJSON), fact.Unit, string(fact.Source), fact.Confidence, fact.PassID, fact.RecordedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert fact")
	}
	return &fact, nil
}

func (s *SQLiteStore) ListFacts(ctx context.Context, scope model.Scope, filter FactFilter) ([]model.Fact, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT id, tenant_id, development_id, house_type, unit_id, key, value, unit, source, confidence, pass_id, recorded_at
		FROM facts WHERE tenant_id = ? AND development_id = ? AND house_type = ?`
	args := []any{scope.TenantID, scope.DevelopmentID, scope.HouseType}

	// Unit-scoped callers see house-type facts plus their own unit's facts.
	if scope.UnitID != "" {
		query += ` AND unit_id IN ('', ?)`
		args = append(args, scope.UnitID)
	} else {
		query += ` AND unit_id = ''`
	}

	if filter.Key != "" {
		query += ` AND key = ?`
		args = append(args, filter.Key)
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, string(filter.Source))
	}
	if filter.FinalizedOnly {
		query += ` AND (pass_id = '' OR pass_id IN (SELECT id FROM passes WHERE status = 'finalized'))`
	}
	query += ` ORDER BY recorded_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list facts")
	}
	defer rows.Close()

	var facts []model.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, *f)
	}
	return facts, eris.Wrap(rows.Err(), "sqlite: list facts iterate")
}

func (s *SQLiteStore) CreatePass(ctx context.Context, scope model.Scope, method string) (*model.ExtractionPass, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO passes (id, tenant_id, development_id, house_type, method, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, scope.TenantID, scope.DevelopmentID, scope.HouseType, method, string(model.PassStatusOpen), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert pass")
	}

	return &model.ExtractionPass{
		ID:        id,
		Scope:     scope,
		Method:    method,
		Status:    model.PassStatusOpen,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) GetPass(ctx context.Context, passID string) (*model.ExtractionPass, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, development_id, house_type, method, status, outcome, fact_count, cost_cents, started_at, finalized_at
		 FROM passes WHERE id = ?`,
		passID,
	)
	return scanPass(row)
}

func (s *SQLiteStore) FinalizePass(ctx context.Context, passID string, outcome model.PassOutcome, factCount, costCents int) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE passes SET status = ?, outcome = ?, fact_count = ?, cost_cents = ?, finalized_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.PassStatusFinalized), string(outcome), factCount, costCents, now,
		passID, string(model.PassStatusOpen),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finalize pass %s", passID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(model.ErrPassNotOpen, "pass %s", passID)
	}
	return nil
}

func (s *SQLiteStore) ListPasses(ctx context.Context, scope model.Scope) ([]model.ExtractionPass, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, development_id, house_type, method, status, outcome, fact_count, cost_cents, started_at, finalized_at
		 FROM passes WHERE tenant_id = ? AND development_id = ? AND house_type = ?
		 ORDER BY started_at ASC`,
		scope.TenantID, scope.DevelopmentID, scope.HouseType,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list passes")
	}
	defer rows.Close()

	var passes []model.ExtractionPass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		passes = append(passes, *p)
	}
	return passes, eris.Wrap(rows.Err(), "sqlite: list passes iterate")
}

func (s *SQLiteStore) GetCurrentProfile(ctx context.Context, scope model.Scope) (*model.Profile, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		profileSelect+` WHERE tenant_id = ? AND development_id = ? AND house_type = ? AND is_current = 1`,
		scope.TenantID, scope.DevelopmentID, scope.HouseType,
	)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStore) ListProfileVersions(ctx context.Context, scope model.Scope) ([]model.Profile, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		profileSelect+` WHERE tenant_id = ? AND development_id = ? AND house_type = ? ORDER BY version ASC`,
		scope.TenantID, scope.DevelopmentID, scope.HouseType,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list profile versions")
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, eris.Wrap(rows.Err(), "sqlite: list profile versions iterate")
}

func (s *SQLiteStore) PublishProfile(ctx context.Context, profile model.Profile, expectedPrev int) (*model.Profile, error) {
	if err := profile.Scope.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin publish tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var prevID string
	var prevVersion int
	err = tx.QueryRowContext(ctx,
		`SELECT id, version FROM profiles
		 WHERE tenant_id = ? AND development_id = ? AND house_type = ? AND is_current = 1`,
		profile.Scope.TenantID, profile.Scope.DevelopmentID, profile.Scope.HouseType,
	).Scan(&prevID, &prevVersion)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		prevVersion = 0
	case err != nil:
		return nil, eris.Wrap(err, "sqlite: read current profile")
	}

	if prevVersion != expectedPrev {
		return nil, eris.Wrapf(model.ErrPublishConflict,
			"expected version %d, current is %d", expectedPrev, prevVersion)
	}

	profile.ID = uuid.New().String()
	profile.Version = expectedPrev + 1
	profile.IsCurrent = true
	profile.CreatedAt = time.Now().UTC()

	factsJSON, err := json.Marshal(profile.Facts)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal profile facts")
	}
	passesJSON, err := json.Marshal(profile.Passes)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal profile passes")
	}
	docsJSON, err := json.Marshal(profile.SourceDocuments)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal source documents")
	}

	if prevID != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE profiles SET is_current = 0, superseded_by = ? WHERE id = ?`,
			profile.ID, prevID,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: retire previous profile")
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO profiles (id, tenant_id, development_id, house_type, version, is_current, quality_score, facts, passes, source_documents, created_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?)`,
		profile.ID, profile.Scope.TenantID, profile.Scope.DevelopmentID, profile.Scope.HouseType,
		profile.Version, profile.QualityScore, string(factsJSON), string(passesJSON), string(docsJSON), profile.CreatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert profile")
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit publish tx")
	}
	return &profile, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanFact(row scannable) (*model.Fact, error) {
	var f model.Fact
	var valueJSON, source string
	err := row.Scan(&f.ID, &f.Scope.TenantID, &f.Scope.DevelopmentID, &f.Scope.HouseType, &f.Scope.UnitID,
		&f.Key, &valueJSON, &f.Unit, &source, &f.Confidence, &f.PassID, &f.RecordedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan fact")
	}
	f.Source = model.Source(source)
	if err := json.Unmarshal([]byte(valueJSON), &f.Value); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal fact value")
	}
	return &f, nil
}

func scanPass(row scannable) (*model.ExtractionPass, error) {
	var p model.ExtractionPass
	var status string
	var outcome sql.NullString
	var finalizedAt sql.NullTime
	err := row.Scan(&p.ID, &p.Scope.TenantID, &p.Scope.DevelopmentID, &p.Scope.HouseType,
		&p.Method, &status, &outcome, &p.FactCount, &p.CostCents, &p.StartedAt, &finalizedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.New("pass not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan pass")
	}
	p.Status = model.PassStatus(status)
	if outcome.Valid {
		p.Outcome = model.PassOutcome(outcome.String)
	}
	if finalizedAt.Valid {
		t := finalizedAt.Time
		p.FinalizedAt = &t
	}
	return &p, nil
}

const profileSelect = `SELECT id, tenant_id, development_id, house_type, version, is_current, quality_score, facts, passes, source_documents, superseded_by, created_at FROM profiles`

func scanProfile(row scannable) (*model.Profile, error) {
	var p model.Profile
	var isCurrent int
	var factsJSON, passesJSON string
	var docsJSON, supersededBy sql.NullString

	err := row.Scan(&p.ID, &p.Scope.TenantID, &p.Scope.DevelopmentID, &p.Scope.HouseType,
		&p.Version, &isCurrent, &p.QualityScore, &factsJSON, &passesJSON, &docsJSON, &supersededBy, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan profile")
	}
	p.IsCurrent = isCurrent == 1
	if err := json.Unmarshal([]byte(factsJSON), &p.Facts); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal profile facts")
	}
	if err := json.Unmarshal([]byte(passesJSON), &p.Passes); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal profile passes")
	}
	if docsJSON.Valid && docsJSON.String != "" && docsJSON.String != "null" {
		if err := json.Unmarshal([]byte(docsJSON.String), &p.SourceDocuments); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal source documents")
		}
	}
	if supersededBy.Valid {
		p.SupersededBy = supersededBy.String
	}
	return &p, nil
}
