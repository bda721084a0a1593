package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"notigate/internal/config"
	"notigate/internal/model"
	"notigate/internal/results"
)

// Store persists behavior patterns and decision history. It satisfies
// the pipeline's BehaviorStore.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	LoadBehavior(ctx context.Context, userID string) (model.UserBehaviorPattern, bool, error)
	SaveBehavior(ctx context.Context, pattern model.UserBehaviorPattern) error
	SaveDecision(ctx context.Context, d results.Decision) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
