package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const positionsKey = "{mm}:positions" // Hash: actorID -> last announced queue position

// RedisPositions keeps the last announced queue positions in Redis so that
// sweeps running on different nodes agree on what was already sent.
type RedisPositions struct {
	Redis redis.UniversalClient
}

func NewRedisPositions(rdb redis.UniversalClient) *RedisPositions {
	return &RedisPositions{Redis: rdb}
}

func (p *RedisPositions) LastPositions(ctx context.Context) (map[string]int, error) {
	fields, err := p.Redis.HGetAll(ctx, positionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read queue positions: %w", err)
	}
	positions := make(map[string]int, len(fields))
	for id, v := range fields {
		if n, err := strconv.Atoi(v); err == nil {
			positions[id] = n
		}
	}
	return positions, nil
}

// SavePositions replaces the stored positions in one transaction.
func (p *RedisPositions) SavePositions(ctx context.Context, positions map[string]int) error {
	_, err := p.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, positionsKey)
		if len(positions) > 0 {
			values := make(map[string]any, len(positions))
			for id, n := range positions {
				values[id] = n
			}
			pipe.HSet(ctx, positionsKey, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save queue positions: %w", err)
	}
	return nil
}
