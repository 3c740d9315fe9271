package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"portal_usap_backend/internal/reconcile"

	"github.com/redis/go-redis/v9"
)

const statusKey = "crm:sync:last_run"

// StatusStore keeps the last run summary in Redis so the API can report runs
// made by the scheduler process. Without Redis it keeps it in memory.
type StatusStore struct {
	rdb redis.UniversalClient
	mu  sync.RWMutex
	mem *reconcile.RunResult
}

// NewStatusStore creates a store. rdb may be nil.
func NewStatusStore(rdb redis.UniversalClient) *StatusStore {
	return &StatusStore{rdb: rdb}
}

// Save records result as the last run.
func (s *StatusStore) Save(ctx context.Context, result reconcile.RunResult) error {
	s.mu.Lock()
	s.mem = &result
	s.mu.Unlock()

	if s.rdb == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode run status: %w", err)
	}
	if err := s.rdb.Set(ctx, statusKey, data, 0).Err(); err != nil {
		return fmt.Errorf("save run status: %w", err)
	}
	return nil
}

// Last returns the most recent run, nil if none is known.
func (s *StatusStore) Last(ctx context.Context) (*reconcile.RunResult, error) {
	if s.rdb != nil {
		data, err := s.rdb.Get(ctx, statusKey).Bytes()
		switch {
		case err == nil:
			var result reconcile.RunResult
			if err := json.Unmarshal(data, &result); err != nil {
				return nil, fmt.Errorf("decode run status: %w", err)
			}
			return &result, nil
		case !errors.Is(err, redis.Nil):
			return nil, fmt.Errorf("load run status: %w", err)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mem == nil {
		return nil, nil
	}
	result := *s.mem
	return &result, nil
}
