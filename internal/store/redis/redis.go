package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diogoX451/jackson/internal/core/ports"
)

// Journal stores the server's wiring history in Redis lists.
type Journal struct {
	client *redis.Client
	ttl    time.Duration
}

var _ ports.Journal = (*Journal)(nil)

type Config struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	DefaultTTL time.Duration
}

func New(cfg Config) (*Journal, error) {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Journal{client: client, ttl: cfg.DefaultTTL}, nil
}

// Keys:
// session:{id}:connections -> list of json JournalEntry, oldest first

func (j *Journal) connectionsKey(session string) string {
	return fmt.Sprintf("session:%s:connections", session)
}

func (j *Journal) Record(ctx context.Context, entry ports.JournalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	key := j.connectionsKey(entry.Session)
	pipe := j.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, j.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (j *Journal) Entries(ctx context.Context, session string) ([]ports.JournalEntry, error) {
	raw, err := j.client.LRange(ctx, j.connectionsKey(session), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]ports.JournalEntry, 0, len(raw))
	for _, item := range raw {
		var entry ports.JournalEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal journal entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (j *Journal) Close() error {
	return j.client.Close()
}
