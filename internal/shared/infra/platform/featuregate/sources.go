package featuregate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
)

// StaticSource lee rollouts de un mapa fijo (FEATURE_FLAGS).
type StaticSource map[string]int

func (s StaticSource) Rollout(_ context.Context, name string) (int, bool, error) {
	pct, ok := s[name]
	return pct, ok, nil
}

// DefaultRedisHash es el hash de Redis donde viven los flags: HSET feature_flags <name> <percent>.
const DefaultRedisHash = "omnizap:feature_flags"

// RedisSource lee rollouts de un hash de Redis. Si la clave no existe en Redis
// se consulta next (normalmente la StaticSource del entorno).
type RedisSource struct {
	client  *redis.Client
	hashKey string
	next    RolloutSource
}

func NewRedisSource(client *redis.Client, hashKey string, next RolloutSource) *RedisSource {
	if hashKey == "" {
		hashKey = DefaultRedisHash
	}
	return &RedisSource{client: client, hashKey: hashKey, next: next}
}

func (s *RedisSource) Rollout(ctx context.Context, name string) (int, bool, error) {
	val, err := s.client.HGet(ctx, s.hashKey, name).Result()
	if errors.Is(err, redis.Nil) {
		if s.next != nil {
			return s.next.Rollout(ctx, name)
		}
		return 0, false, nil
	}
	if err != nil {
		if s.next != nil {
			return s.next.Rollout(ctx, name)
		}
		return 0, false, fmt.Errorf("redis hget %s: %w", name, err)
	}
	pct, err := parsePercent(val)
	if err != nil {
		return 0, false, fmt.Errorf("feature %s: %w", name, err)
	}
	return pct, true, nil
}

// parsePercent acepta "25", "true"/"on" (100) y "false"/"off" (0).
func parsePercent(raw string) (int, error) {
	switch v := strings.ToLower(strings.TrimSpace(raw)); v {
	case "true", "on", "yes":
		return 100, nil
	case "false", "off", "no":
		return 0, nil
	default:
		pct, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid rollout %q", raw)
		}
		return min(max(pct, 0), 100), nil
	}
}
