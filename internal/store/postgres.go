package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/openhouse-labs/scheme-intel/internal/db"
	"github.com/openhouse-labs/scheme-intel/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
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

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS facts (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	development_id TEXT NOT NULL,
	house_type     TEXT NOT NULL,
	unit_id        TEXT NOT NULL DEFAULT '',
	key            TEXT NOT NULL,
	value          JSONB NOT NULL,
	unit           TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	pass_id        TEXT NOT NULL DEFAULT '',
	recorded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
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
	started_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	finalized_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS profiles (
	id               TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL,
	development_id   TEXT NOT NULL,
	house_type       TEXT NOT NULL,
	version          INTEGER NOT NULL,
	is_current       BOOLEAN NOT NULL DEFAULT false,
	quality_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	facts            JSONB NOT NULL,
	passes           JSONB NOT NULL,
	source_documents JSONB,
	superseded_by    TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(tenant_id, development_id, house_type, version)
);

CREATE INDEX IF NOT EXISTS idx_facts_scope_key ON facts(tenant_id, development_id, house_type, key);
CREATE INDEX IF NOT EXISTS idx_facts_pass ON facts(pass_id);
CREATE INDEX IF NOT EXISTS idx_passes_scope ON passes(tenant_id, development_id, house_type);
CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_current
	ON profiles(tenant_id, development_id, house_type) WHERE is_current;
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) InsertFact(ctx context.Context, fact model.Fact) (*model.Fact, error) {
	if err := fact.Scope.Validate(); err != nil {
		return nil, err
	}
	fact.ID = uuid.New().String()
	if fact.RecordedAt.IsZero() {
		fact.RecordedAt = time.Now().UTC()
	}

	valueJSON, err := json.Marshal(fact.Value)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal fact value")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO facts (id, tenant_id, development_id, house_type, unit_id, key, value, unit, source, confidence, pass_id, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		fact.ID, fact.Scope.TenantID, fact.Scope.DevelopmentID, fact.Scope.HouseType, fact.Scope.UnitID,
		fact.Key, valueJSON, fact.Unit, string(fact.Source), fact.Confidence, fact.PassID, fact.RecordedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert fact")
	}
	return &fact, nil
}

// BulkInsertFacts inserts many facts via the COPY protocol. Facts get fresh
// IDs; scope validation applies to each row.
func (s *PostgresStore) BulkInsertFacts(ctx context.Context, facts []model.Fact) (int64, error) {
	rows := make([][]any, 0, len(facts))
	now := time.Now().UTC()
	for _, f := range facts {
		if err := f.Scope.Validate(); err != nil {
			return 0, err
		}
		valueJSON, err := json.Marshal(f.Value)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal fact value")
		}
		recordedAt := f.RecordedAt
		if recordedAt.IsZero() {
			recordedAt = now
		}
		rows = append(rows, []any{
			uuid.New().String(), f.Scope.TenantID, f.Scope.DevelopmentID, f.Scope.HouseType, f.Scope.UnitID,
			f.Key, valueJSON, f.Unit, string(f.Source), f.Confidence, f.PassID, recordedAt,
		})
	}
	return db.CopyFrom(ctx, s.pool, "facts",
		[]string{"id", "tenant_id", "development_id", "house_type", "unit_id", "key", "value", "unit", "source", "confidence", "pass_id", "recorded_at"},
		rows)
}

func (s *PostgresStore) ListFacts(ctx context.Context, scope model.Scope, filter FactFilter) ([]model.Fact, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT id, tenant_id, development_id, house_type, unit_id, key, value, unit, source, confidence, pass_id, recorded_at
		FROM facts WHERE tenant_id = $1 AND development_id = $2 AND house_type = $3`
	args := []any{scope.TenantID, scope.DevelopmentID, scope.HouseType}

	if scope.UnitID != "" {
		args = append(args, scope.UnitID)
		query += ` AND unit_id IN ('', $4)`
	} else {
		query += ` AND unit_id = ''`
	}

	if filter.Key != "" {
		args = append(args, filter.Key)
		query += ` AND key = $` + strconv.Itoa(len(args))
	}
	if filter.Source != "" {
		args = append(args, string(filter.Source))
		query += ` AND source = $` + strconv.Itoa(len(args))
	}
	if filter.FinalizedOnly {
		query += ` AND (pass_id = '' OR pass_id IN (SELECT id FROM passes WHERE status = 'finalized'))`
	}
	query += ` ORDER BY recorded_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list facts")
	}
	defer rows.Close()

	var facts []model.Fact
	for rows.Next() {
		f, err := scanPgFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, *f)
	}
	return facts, eris.Wrap(rows.Err(), "postgres: list facts iterate")
}

func (s *PostgresStore) CreatePass(ctx context.Context, scope model.Scope, method string) (*model.ExtractionPass, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO passes (id, tenant_id, development_id, house_type, method, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, scope.TenantID, scope.DevelopmentID, scope.HouseType, method, string(model.PassStatusOpen), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert pass")
	}

	return &model.ExtractionPass{
		ID:        id,
		Scope:     scope,
		Method:    method,
		Status:    model.PassStatusOpen,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) GetPass(ctx context.Context, passID string) (*model.ExtractionPass, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, development_id, house_type, method, status, outcome, fact_count, cost_cents, started_at, finalized_at
		 FROM passes WHERE id = $1`,
		passID,
	)
	p, err := scanPgPass(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("pass not found: %s", passID)
	}
	return p, err
}

func (s *PostgresStore) FinalizePass(ctx context.Context, passID string, outcome model.PassOutcome, factCount, costCents int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE passes SET status = $1, outcome = $2, fact_count = $3, cost_cents = $4, finalized_at = $5
		 WHERE id = $6 AND status = $7`,
		string(model.PassStatusFinalized), string(outcome), factCount, costCents, time.Now().UTC(),
		passID, string(model.PassStatusOpen),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finalize pass %s", passID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrPassNotOpen, "pass %s", passID)
	}
	return nil
}

func (s *PostgresStore) ListPasses(ctx context.Context, scope model.Scope) ([]model.ExtractionPass, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, development_id, house_type, method, status, outcome, fact_count, cost_cents, started_at, finalized_at
		 FROM passes WHERE tenant_id = $1 AND development_id = $2 AND house_type = $3
		 ORDER BY started_at ASC`,
		scope.TenantID, scope.DevelopmentID, scope.HouseType,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list passes")
	}
	defer rows.Close()

	var passes []model.ExtractionPass
	for rows.Next() {
		p, err := scanPgPass(rows)
		if err != nil {
			return nil, err
		}
		passes = append(passes, *p)
	}
	return passes, eris.Wrap(rows.Err(), "postgres: list passes iterate")
}

const pgProfileSelect = `SELECT id, tenant_id, development_id, house_type, version, is_current, quality_score, facts, passes, source_documents, superseded_by, created_at FROM profiles`

func (s *PostgresStore) GetCurrentProfile(ctx context.Context, scope model.Scope) (*model.Profile, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx,
		pgProfileSelect+` WHERE tenant_id = $1 AND development_id = $2 AND house_type = $3 AND is_current`,
		scope.TenantID, scope.DevelopmentID, scope.HouseType,
	)
	p, err := scanPgProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *PostgresStore) ListProfileVersions(ctx context.Context, scope model.Scope) ([]model.Profile, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		pgProfileSelect+` WHERE tenant_id = $1 AND development_id = $2 AND house_type = $3 ORDER BY version ASC`,
		scope.TenantID, scope.DevelopmentID, scope.HouseType,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list profile versions")
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanPgProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, eris.Wrap(rows.Err(), "postgres: list profile versions iterate")
}

func (s *PostgresStore) PublishProfile(ctx context.Context, profile model.Profile, expectedPrev int) (*model.Profile, error) {
	if err := profile.Scope.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin publish tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var prevID string
	var prevVersion int
	err = tx.QueryRow(ctx,
		`SELECT id, version FROM profiles
		 WHERE tenant_id = $1 AND development_id = $2 AND house_type = $3 AND is_current
		 FOR UPDATE`,
		profile.Scope.TenantID, profile.Scope.DevelopmentID, profile.Scope.HouseType,
	).Scan(&prevID, &prevVersion)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		prevVersion = 0
	case err != nil:
		return nil, eris.Wrap(err, "postgres: read current profile")
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
		return nil, eris.Wrap(err, "postgres: marshal profile facts")
	}
	passesJSON, err := json.Marshal(profile.Passes)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal profile passes")
	}
	docsJSON, err := json.Marshal(profile.SourceDocuments)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal source documents")
	}

	if prevID != "" {
		if _, err := tx.Exec(ctx,
			`UPDATE profiles SET is_current = false, superseded_by = $1 WHERE id = $2`,
			profile.ID, prevID,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: retire previous profile")
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO profiles (id, tenant_id, development_id, house_type, version, is_current, quality_score, facts, passes, source_documents, created_at)
		 VALUES ($1, $2, $3, $4, $5, true, $6, $7, $8, $9, $10)`,
		profile.ID, profile.Scope.TenantID, profile.Scope.DevelopmentID, profile.Scope.HouseType,
		profile.Version, profile.QualityScore, factsJSON, passesJSON, docsJSON, profile.CreatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: insert profile")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit publish tx")
	}
	return &profile, nil
}


func scanPgFact(row pgx.Row) (*model.Fact, error) {
	var f model.Fact
	var valueJSON []byte
	var source string
	err := row.Scan(&f.ID, &f.Scope.TenantID, &f.Scope.DevelopmentID, &f.Scope.HouseType, &f.Scope.UnitID,
		&f.Key, &valueJSON, &f.Unit, &source, &f.Confidence, &f.PassID, &f.RecordedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan fact")
	}
	f.Source = model.Source(source)
	if err := json.Unmarshal(valueJSON, &f.Value); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal fact value")
	}
	return &f, nil
}

func scanPgPass(row pgx.Row) (*model.ExtractionPass, error) {
	var p model.ExtractionPass
	var status string
	var outcome *string
	var finalizedAt *time.Time
	err := row.Scan(&p.ID, &p.Scope.TenantID, &p.Scope.DevelopmentID, &p.Scope.HouseType,
		&p.Method, &status, &outcome, &p.FactCount, &p.CostCents, &p.StartedAt, &finalizedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan pass")
	}
	p.Status = model.PassStatus(status)
	if outcome != nil {
		p.Outcome = model.PassOutcome(*outcome)
	}
	p.FinalizedAt = finalizedAt
	return &p, nil
}

func scanPgProfile(row pgx.Row) (*model.Profile, error) {
	var p model.Profile
	var factsJSON, passesJSON []byte
	var docsJSON []byte
	var supersededBy *string

	err := row.Scan(&p.ID, &p.Scope.TenantID, &p.Scope.DevelopmentID, &p.Scope.HouseType,
		&p.Version, &p.IsCurrent, &p.QualityScore, &factsJSON, &passesJSON, &docsJSON, &supersededBy, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan profile")
	}
	if err := json.Unmarshal(factsJSON, &p.Facts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal profile facts")
	}
	if err := json.Unmarshal(passesJSON, &p.Passes); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal profile passes")
	}
	if len(docsJSON) > 0 && string(docsJSON) != "null" {
		if err := json.Unmarshal(docsJSON, &p.SourceDocuments); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal source documents")
		}
	}
	if supersededBy != nil {
		p.SupersededBy = *supersededBy
	}
	return &p, nil
}
