//go:build integration

package redis_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	audit "lendaudit/pkg/platform/audit"
	auditredis "lendaudit/pkg/platform/audit/store/redis"
	"lendaudit/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	ctx   context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisStoreSuite) TestInsertAndRecent() {
	store := auditredis.New(s.redis.Client)

	for _, id := range []string{"1", "2"} {
		s.Require().NoError(store.Insert(s.ctx, audit.Record{
			UserID:     "u1",
			Action:     audit.ActionUpdate,
			Resource:   "buyer",
			ResourceID: id,
			Status:     audit.StatusSuccess,
		}))
	}

	records, err := store.Recent(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal("2", records[0].ResourceID, "newest first")
	s.NotEmpty(records[0].ID)
	s.False(records[0].Timestamp.IsZero())
}

func (s *RedisStoreSuite) TestStreamIsCapped() {
	store := auditredis.New(s.redis.Client, auditredis.WithStream("audit:capped"), auditredis.WithMaxLen(1))

	for range 500 {
		s.Require().NoError(store.Insert(s.ctx, audit.Record{UserID: "u1", Action: audit.ActionRead, Resource: "deal"}))
	}

	n, err := s.redis.Client.XLen(s.ctx, "audit:capped").Result()
	s.Require().NoError(err)
	s.Less(n, int64(500))
}
