//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	audit "lendaudit/pkg/platform/audit"
	"lendaudit/pkg/platform/audit/store/postgres"
	"lendaudit/pkg/platform/sentinel"
	txcontext "lendaudit/pkg/platform/tx"
	"lendaudit/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *postgres.Store
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = postgres.New(s.pg.DB)
	s.Require().NoError(s.store.Migrate(s.ctx))
	s.Require().NoError(s.store.Migrate(s.ctx), "migration must be re-runnable")
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, "audit_logs"))
}

func sampleRecord() audit.Record {
	return audit.Record{
		UserID:       "u1",
		UserEmail:    "a@b.com",
		Action:       audit.ActionUpdate,
		Resource:     "buyer",
		ResourceID:   "42",
		Method:       "PUT",
		URL:          "/buyers/42",
		IPAddress:    "1.2.3.4",
		UserAgent:    "curl/8.0",
		Status:       audit.StatusFailure,
		DurationMS:   10,
		ErrorMessage: "not found",
		ErrorCode:    404,
		Level:        audit.LevelCritical,
		PII:          true,
		Compliance:   []string{audit.ComplianceGLBA, audit.ComplianceOFAC},
		RequestID:    "req-1",
		Metadata: audit.Sanitized{
			Params:   map[string]string{"id": "42"},
			Query:    map[string][]string{},
			BodyKeys: []string{"firstName", "ssn"},
		},
	}
}

func (s *PostgresStoreSuite) count() int {
	var n int
	s.Require().NoError(s.pg.DB.QueryRowContext(s.ctx, "SELECT count(*) FROM audit_logs").Scan(&n))
	return n
}

func (s *PostgresStoreSuite) TestInsertAssignsIDAndTimestamp() {
	s.Require().NoError(s.store.Insert(s.ctx, sampleRecord()))

	var (
		id        uuid.UUID
		createdAt time.Time
	)
	s.Require().NoError(s.pg.DB.QueryRowContext(s.ctx, "SELECT id, created_at FROM audit_logs").Scan(&id, &createdAt))
	s.NotEqual(uuid.Nil, id)
	s.WithinDuration(time.Now(), createdAt, time.Minute)

	got, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("u1", got.UserID)
	s.Equal(audit.StatusFailure, got.Status)
	s.Equal(404, got.ErrorCode)
	s.Equal([]string{audit.ComplianceGLBA, audit.ComplianceOFAC}, got.Compliance)
	s.Equal([]string{"firstName", "ssn"}, got.Metadata.BodyKeys)
	s.Empty(got.BuyerID)
}

func (s *PostgresStoreSuite) TestInsertWithIDIsIdempotent() {
	id := uuid.New()
	rec := sampleRecord()
	rec.Timestamp = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.InsertWithID(s.ctx, id, rec))
	s.Require().NoError(s.store.InsertWithID(s.ctx, id, rec))

	s.Equal(1, s.count())
	got, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.True(rec.Timestamp.Equal(got.Timestamp))
}

func (s *PostgresStoreSuite) TestInsertKeepsCallerAssignedID() {
	id := uuid.New()
	rec := sampleRecord()
	rec.ID = id.String()

	s.Require().NoError(s.store.Insert(s.ctx, rec))

	got, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(id.String(), got.ID)
}

func (s *PostgresStoreSuite) TestInsertHonoursTransaction() {
	rollback := errors.New("business write failed")
	err := txcontext.Run(s.ctx, s.pg.DB, func(ctx context.Context) error {
		s.Require().NoError(s.store.Insert(ctx, sampleRecord()))
		return rollback
	})
	s.ErrorIs(err, rollback)
	s.Zero(s.count())

	err = txcontext.Run(s.ctx, s.pg.DB, func(ctx context.Context) error {
		return s.store.Insert(ctx, sampleRecord())
	})
	s.Require().NoError(err)
	s.Equal(1, s.count())
}

func (s *PostgresStoreSuite) TestSuccessRecordHasNoErrorColumns() {
	rec := sampleRecord()
	rec.Status = audit.StatusSuccess
	rec.ErrorMessage = ""
	rec.ErrorCode = 0
	rec.Compliance = nil
	s.Require().NoError(s.store.Insert(s.ctx, rec))

	var hasCode, hasMessage bool
	var compliance int
	s.Require().NoError(s.pg.DB.QueryRowContext(s.ctx,
		"SELECT error_code IS NOT NULL, error_message IS NOT NULL, cardinality(compliance) FROM audit_logs",
	).Scan(&hasCode, &hasMessage, &compliance))
	s.False(hasCode)
	s.False(hasMessage)
	s.Zero(compliance)
}

func (s *PostgresStoreSuite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}
