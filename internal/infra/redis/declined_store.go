package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ropa-suggestions/internal/domain/model"
	"ropa-suggestions/internal/domain/ports/repository"
	"ropa-suggestions/internal/infra/metrics"
)

var _ repository.DeclinedJobRepository = (*DeclinedJobStore)(nil)

// DeclinedJobStore keeps one Redis set per entity. With ttl 0 the sets never
// expire. Otherwise every write refreshes the TTL, so a set expires only after
// ttl without any decline.
type DeclinedJobStore struct {
	client RedisClient
	ttl    time.Duration
}

func NewDeclinedJobStore(client RedisClient, ttl time.Duration) *DeclinedJobStore {
	return &DeclinedJobStore{client: client, ttl: ttl}
}

func declinedKey(scope model.DeclinedScope) string {
	return fmt.Sprintf("declined_jobs:%s:%s", scope.EntityType, scope.EntityID)
}

func (s *DeclinedJobStore) Add(ctx context.Context, scope model.DeclinedScope, jobIDs ...string) error {
	if len(jobIDs) == 0 {
		return nil
	}
	key := declinedKey(scope)
	err := s.client.SAdd(ctx, key, jobIDs...)
	if err == nil && s.ttl > 0 {
		err = s.client.Expire(ctx, key, s.ttl)
	}
	metrics.IncDeclinedStoreOp("redis", "add", err)
	return err
}

func (s *DeclinedJobStore) List(ctx context.Context, scope model.DeclinedScope) ([]string, error) {
	ids, err := s.client.SMembers(ctx, declinedKey(scope))
	metrics.IncDeclinedStoreOp("redis", "list", err)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}
