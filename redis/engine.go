package redis

import (
	"github.com/redis/go-redis/v9"

	"github.com/petrijr/stepflow/internal/engine"
	"github.com/petrijr/stepflow/internal/routing"
	"github.com/petrijr/stepflow/pkg/api"

	rstore "github.com/petrijr/stepflow/redis/internal/memstore"
)

// NewRedisEngine returns an Engine whose routing memory persists in Redis.
// All other state is in-memory. prefix is optional but recommended
// (e.g. "stepflow:").
func NewRedisEngine(client *redis.Client, prefix string) (api.Engine, error) {
	return NewRedisEngineWithObserver(client, prefix, nil)
}

// NewRedisEngineWithObserver returns a Redis-backed Engine with the given
// Observer.
func NewRedisEngineWithObserver(client *redis.Client, prefix string, obs api.Observer) (api.Engine, error) {
	return NewRedisEngineWithConfig(client, prefix, routing.DefaultConfig(), obs)
}

// NewRedisEngineWithConfig returns a Redis-backed Engine using the given
// routing configuration.
func NewRedisEngineWithConfig(client *redis.Client, prefix string, cfg routing.Config, obs api.Observer) (api.Engine, error) {
	router, err := routing.NewRouter(cfg, rstore.NewRedisStore(client, prefix))
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(engine.Options{Router: router, Observer: obs})
	if err != nil {
		return nil, err
	}
	return eng, nil
}
