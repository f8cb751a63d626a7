package memstore

import (
	"database/sql"

	"github.com/petrijr/stepflow/internal/routing"
	"github.com/petrijr/stepflow/pkg/api"
)

// SQLiteStore persists routing-memory counters in SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements routing.Store.
var _ routing.Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS routing_memory (
			agent_id TEXT NOT NULL,
			step_type TEXT NOT NULL,
			bucket TEXT NOT NULL,
			tier TEXT NOT NULL,
			run_count INTEGER NOT NULL DEFAULT 0,
			success_count INTEGER NOT NULL DEFAULT 0,
			total_cost REAL NOT NULL DEFAULT 0,
			total_latency_ms REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (agent_id, step_type, bucket, tier)
		);`,
	)
	return err
}

func (s *SQLiteStore) GetRecommendation(key routing.Key) (*routing.Recommendation, error) {
	rows, err := s.db.Query(`
		SELECT tier, run_count, success_count, total_cost, total_latency_ms
		FROM routing_memory
		WHERE agent_id = ? AND step_type = ? AND bucket = ?`,
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

func (s *SQLiteStore) RecordOutcome(key routing.Key, tier api.Tier, success bool, cost, latencyMs float64) error {
	succ := 0
	if success {
		succ = 1
	}
	// Counters are append-only: the upsert only ever adds.
	_, err := s.db.Exec(`
		INSERT INTO routing_memory
			(agent_id, step_type, bucket, tier, run_count, success_count, total_cost, total_latency_ms)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT (agent_id, step_type, bucket, tier) DO UPDATE SET
			run_count = run_count + 1,
			success_count = success_count + excluded.success_count,
			total_cost = total_cost + excluded.total_cost,
			total_latency_ms = total_latency_ms + excluded.total_latency_ms`,
		key.AgentID, string(key.StepType), key.Bucket, string(tier),
		succ, cost, latencyMs,
	)
	return err
}
