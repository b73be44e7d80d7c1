package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Progress of a batch as chunks are priced.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Complete reports whether every chunk of the batch has been priced.
func (p Progress) Complete() bool {
	return p.Total > 0 && p.Done >= p.Total
}

type StateManager interface {
	SetChunkTotal(ctx context.Context, batchID string, total int) error
	MarkChunkDone(ctx context.Context, batchID string, chunkIndex int) (Progress, error)
	GetProgress(ctx context.Context, batchID string) (Progress, error)
	GetSelection(ctx context.Context) ([]string, error)
	SetSelection(ctx context.Context, paths []string) error
}

type redisStateManager struct {
	redisClient  *redis.Client
	keyPrefix    string
	selectionKey string
}

func NewRedisStateManager(redisClient *redis.Client) StateManager {
	return &redisStateManager{
		redisClient:  redisClient,
		keyPrefix:    "repricer:progress:",
		selectionKey: "repricer:selection",
	}
}

func (s *redisStateManager) totalKey(batchID string) string {
	return s.keyPrefix + batchID + ":total"
}

func (s *redisStateManager) doneKey(batchID string) string {
	return s.keyPrefix + batchID + ":done"
}

func (s *redisStateManager) SetChunkTotal(ctx context.Context, batchID string, total int) error {
	err := s.redisClient.Set(ctx, s.totalKey(batchID), total, 0).Err() // No expiration
	if err != nil {
		return fmt.Errorf("failed to set chunk total for batch %s: %w", batchID, err)
	}
	return nil
}

// MarkChunkDone records a priced chunk. Redelivered chunks are only counted
// once.
func (s *redisStateManager) MarkChunkDone(ctx context.Context, batchID string, chunkIndex int) (Progress, error) {
	err := s.redisClient.SAdd(ctx, s.doneKey(batchID), chunkIndex).Err()
	if err != nil {
		return Progress{}, fmt.Errorf("failed to mark chunk %d of batch %s: %w", chunkIndex, batchID, err)
	}
	return s.GetProgress(ctx, batchID)
}

func (s *redisStateManager) GetProgress(ctx context.Context, batchID string) (Progress, error) {
	done, err := s.redisClient.SCard(ctx, s.doneKey(batchID)).Result()
	if err != nil {
		return Progress{}, fmt.Errorf("failed to get progress for batch %s: %w", batchID, err)
	}

	val, err := s.redisClient.Get(ctx, s.totalKey(batchID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Progress{Done: int(done)}, nil // Total not known yet
		}
		return Progress{}, fmt.Errorf("failed to get chunk total for batch %s: %w", batchID, err)
	}

	total, err := strconv.Atoi(val)
	if err != nil {
		return Progress{}, fmt.Errorf("failed to parse chunk total for batch %s: %w", batchID, err)
	}

	return Progress{Done: int(done), Total: total}, nil
}

func (s *redisStateManager) GetSelection(ctx context.Context) ([]string, error) {
	val, err := s.redisClient.Get(ctx, s.selectionKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil // Nothing selected yet
		}
		return nil, fmt.Errorf("failed to get category selection: %w", err)
	}

	var paths []string
	if err := json.Unmarshal([]byte(val), &paths); err != nil {
		return nil, fmt.Errorf("failed to decode category selection: %w", err)
	}
	return paths, nil
}

func (s *redisStateManager) SetSelection(ctx context.Context, paths []string) error {
	if paths == nil {
		paths = []string{}
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return fmt.Errorf("failed to encode category selection: %w", err)
	}
	if err := s.redisClient.Set(ctx, s.selectionKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set category selection: %w", err)
	}
	return nil
}
