package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"notigate/internal/model"
	"notigate/internal/results"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/notigate?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS behavior_patterns (
			user_id TEXT PRIMARY KEY,
			pattern_json JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			user_id TEXT,
			delivered_json JSONB NOT NULL,
			stats_json JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_user ON decisions(user_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) LoadBehavior(ctx context.Context, userID string) (model.UserBehaviorPattern, bool, error) {
	if s.db == nil || userID == "" {
		return model.UserBehaviorPattern{}, false, nil
	}
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT pattern_json FROM behavior_patterns WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserBehaviorPattern{}, false, nil
	}
	if err != nil {
		return model.UserBehaviorPattern{}, false, err
	}
	var pattern model.UserBehaviorPattern
	if err := json.Unmarshal([]byte(raw), &pattern); err != nil {
		return model.UserBehaviorPattern{}, false, err
	}
	return pattern, true, nil
}

func (s *postgresStore) SaveBehavior(ctx context.Context, pattern model.UserBehaviorPattern) error {
	if s.db == nil || pattern.UserID == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO behavior_patterns (user_id, pattern_json, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET pattern_json = EXCLUDED.pattern_json, updated_at = EXCLUDED.updated_at`,
		pattern.UserID,
		encodeJSON(pattern),
		nowUTC(),
	)
	return err
}

func (s *postgresStore) SaveDecision(ctx context.Context, d results.Decision) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (ts, user_id, delivered_json, stats_json) VALUES ($1, $2, $3, $4)`,
		d.Timestamp.UTC(),
		d.UserID,
		encodeJSON(d.Delivered),
		encodeJSON(d.Stats),
	)
	return err
}
