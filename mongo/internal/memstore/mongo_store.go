package memstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/stepflow/internal/routing"
	"github.com/petrijr/stepflow/pkg/api"
)

const opTimeout = 5 * time.Second

// MongoStore persists routing-memory counters in MongoDB. One document per
// (agent, step type, bucket, tier); outcomes accumulate through $inc
// upserts, so concurrent writers never lose counts.
type MongoStore struct {
	coll *mongo.Collection
}

var _ routing.Store = (*MongoStore)(nil)

// NewMongoStore creates a Mongo-backed routing-memory store. dbName
// defaults to "stepflow" if empty, collName defaults to "routing_memory".
func NewMongoStore(client *mongo.Client, dbName, collName string) *MongoStore {
	if dbName == "" {
		dbName = "stepflow"
	}
	if collName == "" {
		collName = "routing_memory"
	}
	return &MongoStore{coll: client.Database(dbName).Collection(collName)}
}

type memoryDoc struct {
	AgentID        string  `bson:"agent_id"`
	StepType       string  `bson:"step_type"`
	Bucket         string  `bson:"bucket"`
	Tier           string  `bson:"tier"`
	RunCount       int64   `bson:"run_count"`
	SuccessCount   int64   `bson:"success_count"`
	TotalCost      float64 `bson:"total_cost"`
	TotalLatencyMs float64 `bson:"total_latency_ms"`
}

func (s *MongoStore) GetRecommendation(key routing.Key) (*routing.Recommendation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	cur, err := s.coll.Find(ctx, bson.M{
		"agent_id":  key.AgentID,
		"step_type": string(key.StepType),
		"bucket":    key.Bucket,
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	stats := make(map[api.Tier]routing.TierStats)
	for cur.Next(ctx) {
		var doc memoryDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		stats[api.Tier(doc.Tier)] = routing.TierStats{
			RunCount:       doc.RunCount,
			SuccessCount:   doc.SuccessCount,
			TotalCost:      doc.TotalCost,
			TotalLatencyMs: doc.TotalLatencyMs,
		}
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, nil
	}
	return routing.BuildRecommendation(stats), nil
}

func (s *MongoStore) RecordOutcome(key routing.Key, tier api.Tier, success bool, cost, latencyMs float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	succ := int64(0)
	if success {
		succ = 1
	}

	filter := bson.M{
		"agent_id":  key.AgentID,
		"step_type": string(key.StepType),
		"bucket":    key.Bucket,
		"tier":      string(tier),
	}
	update := bson.M{
		"$inc": bson.M{
			"run_count":        int64(1),
			"success_count":    succ,
			"total_cost":       cost,
			"total_latency_ms": latencyMs,
		},
	}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}
