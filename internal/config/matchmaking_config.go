package config

import "time"

const (
	// Pool
	DefaultQueueIdleTimeout = 90 * time.Second
	DefaultMaxPairAttempts  = 8

	// Conversations
	DefaultConversationIdleTimeout = 5 * time.Minute
	DefaultEndedRetention          = 24 * time.Hour

	// Sweep
	DefaultSweepInterval = 2 * time.Second
	SweepModeLocal       = "local"
	SweepModeAsynq       = "asynq"

	// Join rate limit per actor
	DefaultJoinRate  = 1.0
	DefaultJoinBurst = 5

	// Identity
	DefaultTokenTTL = 72 * time.Hour

	// Store backends
	StoreRedis  = "redis"
	StoreMemory = "memory"
)
