package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long an unfinished run's checkpoint is kept.
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrCheckpointMiss indicates no checkpoint is stored for the key.
	ErrCheckpointMiss = errors.New("checkpoint miss")

	// ErrInvalidEntry indicates the stored checkpoint is corrupted.
	ErrInvalidEntry = errors.New("invalid checkpoint entry")
)

// Store keeps the checkpoint of one key in Redis.
type Store struct {
	redis *redis.Client
	key   Key
	ttl   time.Duration
	runID string
	pages int
}

// NewStore creates a checkpoint store. A ttl <= 0 keeps entries forever.
func NewStore(redisClient *redis.Client, key Key, ttl time.Duration) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Store{
		redis: redisClient,
		key:   key,
		ttl:   ttl,
	}
}

// WithRunID tags saved entries with the id of the current run.
func (s *Store) WithRunID(runID string) *Store {
	s.runID = runID
	return s
}

// Key returns the store's key.
func (s *Store) Key() Key {
	return s.key
}

// Get returns the stored entry or ErrCheckpointMiss.
func (s *Store) Get(ctx context.Context) (*Entry, error) {
	data, err := s.redis.Get(ctx, s.key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CheckpointLoads.WithLabelValues("miss").Inc()
			return nil, ErrCheckpointMiss
		}
		CheckpointErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CheckpointErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if entry.Token == "" {
		CheckpointErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: empty token", ErrInvalidEntry)
	}

	CheckpointLoads.WithLabelValues("hit").Inc()
	return &entry, nil
}

// Load returns the stored token, or "" when none is stored.
func (s *Store) Load(ctx context.Context) (string, error) {
	entry, err := s.Get(ctx)
	if errors.Is(err, ErrCheckpointMiss) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	s.pages = entry.Pages
	return entry.Token, nil
}

// Save stores token as the next page to fetch.
func (s *Store) Save(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("checkpoint token cannot be empty")
	}

	s.pages++
	entry := Entry{
		Stream:  s.key.Stream,
		Token:   token,
		Pages:   s.pages,
		RunID:   s.runID,
		SavedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CheckpointErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.redis.Set(ctx, s.key.String(), data, ttl).Err(); err != nil {
		CheckpointErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CheckpointSaves.Inc()
	return nil
}

// Clear removes the checkpoint.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key.String()).Err(); err != nil {
		CheckpointErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	s.pages = 0
	return nil
}
