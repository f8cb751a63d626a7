package memstore

import (
	"database/sql"

	"github.com/petrijr/stepflow/internal/routing"
	"github.com/petrijr/stepflow/pkg/api"
)

// PostgresStore persists routing-memory counters in PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib" or "github.com/lib/pq").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresStore struct {
	db *sql.DB
}

// Ensure PostgresStore implements routing.Store.
var _ routing.Store = (*PostgresStore)(nil)

// NewPostgresStore initializes the required schema in the given database
// and returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS routing_memory (
			agent_id TEXT NOT NULL,
			step_type TEXT NOT NULL,
			bucket TEXT NOT NULL,
			tier TEXT NOT NULL,
			run_count BIGINT NOT NULL DEFAULT 0,
			success_count BIGINT NOT NULL DEFAULT 0,
			total_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_latency_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
			PRIMARY KEY (agent_id, step_type, bucket, tier)
		);`,
	)
	return err
}

func (s *PostgresStore) GetRecommendation(key routing.Key) (*routing.Recommendation, error) {
	rows, err := s.db.Query(`
		SELECT tier, run_count, success_count, total_cost, total_latency_ms
		FROM routing_memory
		WHERE agent_id = $1 AND step_type = $2 AND bucket = $3`,
		key.AgentID, string(key.StepType), key.Bucket,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[api.Tier]routing.TierStats)
	for rows.Next() {
		var tier string
		var ts routing.TierStats
		if err := rows.Scan(&tier, &ts.RunCount, &ts.SuccessCount, &ts.TotalCost, &ts.TotalLatencyMs); err != nil {
			return nil, err
		}
		stats[api.Tier(tier)] = ts
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, nil
	}
	return routing.BuildRecommendation(stats), nil
}

func (s *PostgresStore) RecordOutcome(key routing.Key, tier api.Tier, success bool, cost, latencyMs float64) error {
	succ := 0
	if success {
		succ = 1
	}
	// Counters are append-only: the upsert only ever adds.
	_, err := s.db.Exec(`
		INSERT INTO routing_memory
			(agent_id, step_type, bucket, tier, run_count, success_count, total_cost, total_latency_ms)
		VALUES ($1, $2, $3, $4, 1, $5, $6, $7)
		ON CONFLICT (agent_id, step_type, bucket, tier) DO UPDATE SET
			run_count = routing_memory.run_count + 1,
			success_count = routing_memory.success_count + EXCLUDED.success_count,
			total_cost = routing_memory.total_cost + EXCLUDED.total_cost,
			total_latency_ms = routing_memory.total_latency_ms + EXCLUDED.total_latency_ms`,
		key.AgentID, string(key.StepType), key.Bucket, string(tier),
		succ, cost, latencyMs,
	)
	return err
}
