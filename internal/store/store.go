// Package store opens the wiring journal the server keeps per session.
package store

import (
	"time"

	"go.uber.org/zap"

	"github.com/diogoX451/jackson/internal/core/ports"
	"github.com/diogoX451/jackson/internal/store/memory"
	redisstore "github.com/diogoX451/jackson/internal/store/redis"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// OpenJournal uses Redis when an address is configured and falls back to
// memory when it is not or when Redis is unreachable.
func OpenJournal(cfg Config, log *zap.Logger) ports.Journal {
	if cfg.Addr == "" {
		log.Info("journal in memory")
		return memory.New(cfg.TTL)
	}

	journal, err := redisstore.New(redisstore.Config{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		DefaultTTL: cfg.TTL,
	})
	if err != nil {
		log.Warn("redis unavailable, journal in memory", zap.String("addr", cfg.Addr), zap.Error(err))
		return memory.New(cfg.TTL)
	}
	log.Info("journal in redis", zap.String("addr", cfg.Addr))
	return journal
}
