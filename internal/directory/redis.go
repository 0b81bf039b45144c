package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Bidon15/ubexdeploy/internal/deploy"
)

// RedisKeyPrefix prefixes the per-network hash keys.
const RedisKeyPrefix = "ubexdeploy:deployments:"

// Redis is a directory stored as one hash per network, field per component.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis creates a directory over client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// RedisKey returns the hash key holding the deployments of network.
func RedisKey(network string) string {
	return RedisKeyPrefix + network
}

func (r *Redis) Record(ctx context.Context, network string, d deploy.Deployment) error {
	if err := validate(network, d); err != nil {
		return err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal deployment: %w", err)
	}
	if err := r.client.HSet(ctx, RedisKey(network), d.Name, data).Err(); err != nil {
		return fmt.Errorf("hset deployment: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, network, name string) (deploy.Deployment, error) {
	data, err := r.client.HGet(ctx, RedisKey(network), name).Bytes()
	if errors.Is(err, redis.Nil) {
		return deploy.Deployment{}, fmt.Errorf("%w: %s on %s", ErrNotFound, name, network)
	}
	if err != nil {
		return deploy.Deployment{}, fmt.Errorf("hget deployment: %w", err)
	}

	var d deploy.Deployment
	if err := json.Unmarshal(data, &d); err != nil {
		return deploy.Deployment{}, fmt.Errorf("decode deployment %s: %w", name, err)
	}
	return d, nil
}

func (r *Redis) List(ctx context.Context, network string) ([]deploy.Deployment, error) {
	fields, err := r.client.HGetAll(ctx, RedisKey(network)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall deployments: %w", err)
	}

	out := make([]deploy.Deployment, 0, len(fields))
	for name, raw := range fields {
		var d deploy.Deployment
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("decode deployment %s: %w", name, err)
		}
		out = append(out, d)
	}
	sortByName(out)
	return out, nil
}
