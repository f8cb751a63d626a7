package mongo

import (
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/stepflow/internal/engine"
	"github.com/petrijr/stepflow/internal/routing"
	"github.com/petrijr/stepflow/pkg/api"

	mstore "github.com/petrijr/stepflow/mongo/internal/memstore"
)

// NewMongoEngine returns an Engine whose routing memory persists in
// MongoDB. All other state is in-memory. dbName defaults to "stepflow" if
// empty, collName defaults to "routing_memory".
func NewMongoEngine(client *mongo.Client, dbName, collName string) (api.Engine, error) {
	return NewMongoEngineWithObserver(client, dbName, collName, nil)
}

// NewMongoEngineWithObserver returns a Mongo-backed Engine with the given
// Observer.
func NewMongoEngineWithObserver(client *mongo.Client, dbName, collName string, obs api.Observer) (api.Engine, error) {
	return NewMongoEngineWithConfig(client, dbName, collName, routing.DefaultConfig(), obs)
}

// NewMongoEngineWithConfig returns a Mongo-backed Engine using the given
// routing configuration.
func NewMongoEngineWithConfig(client *mongo.Client, dbName, collName string, cfg routing.Config, obs api.Observer) (api.Engine, error) {
	router, err := routing.NewRouter(cfg, mstore.NewMongoStore(client, dbName, collName))
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(engine.Options{Router: router, Observer: obs})
	if err != nil {
		return nil, err
	}
	return eng, nil
}
