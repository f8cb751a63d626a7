package postgres

import (
	"database/sql"

	"github.com/petrijr/stepflow/internal/engine"
	"github.com/petrijr/stepflow/internal/routing"
	"github.com/petrijr/stepflow/pkg/api"

	pgstore "github.com/petrijr/stepflow/postgres/internal/memstore"
)

// NewPostgresEngine returns an Engine whose routing memory persists in
// PostgreSQL. All other state is in-memory.
func NewPostgresEngine(db *sql.DB) (api.Engine, error) {
	return NewPostgresEngineWithObserver(db, nil)
}

// NewPostgresEngineWithObserver returns a Postgres-backed Engine with the
// given Observer.
func NewPostgresEngineWithObserver(db *sql.DB, obs api.Observer) (api.Engine, error) {
	return NewPostgresEngineWithConfig(db, routing.DefaultConfig(), obs)
}

// NewPostgresEngineWithConfig returns a Postgres-backed Engine using the
// given routing configuration.
func NewPostgresEngineWithConfig(db *sql.DB, cfg routing.Config, obs api.Observer) (api.Engine, error) {
	store, err := pgstore.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	router, err := routing.NewRouter(cfg, store)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(engine.Options{Router: router, Observer: obs})
	if err != nil {
		return nil, err
	}
	return eng, nil
}
