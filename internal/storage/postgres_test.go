package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/apperrors"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/logger"
)

// Note on SQL Query Matching in Tests:
// ----------------------------------
// GORM generates SQL with clauses like ORDER BY and LIMIT that make exact
// string matching brittle. Tests here use sqlmock.QueryMatcherRegexp with
// partial, escaped patterns and sqlmock.AnyArg()/AnyTime{} for arguments
// whose exact form GORM controls.

const (
	testOrgID      = "7f3c2b5a-9d1e-4f6a-8b2c-3d4e5f6a7b8c"
	testOtherOrgID = "0a1b2c3d-4e5f-6a7b-8c9d-0e1f2a3b4c5d"
	testOrderID    = "3f2a1b0c-9d8e-4f6a-8b2c-1d2e3f4a5b6c"
	testExternalID = "sg-msg-0001"
)

// AnyTime matches any time.Time argument
type AnyTime struct{}

// Match satisfies sqlmock.Argument interface
func (a AnyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

// AnyJSON matches JSONB arguments, which arrive as string, []byte or nil
type AnyJSON struct{}

// Match satisfies sqlmock.Argument interface
func (a AnyJSON) Match(v driver.Value) bool {
	switch v.(type) {
	case []byte, string, nil:
		return true
	default:
		return false
	}
}

// newTestRepo creates a PostgresRepo over a sqlmock connection with regex
// query matching.
func newTestRepo(t *testing.T) (*PostgresRepo, sqlmock.Sqlmock, func()) {
	t.Helper()
	logger.Log = zaptest.NewLogger(t).Named("test")
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	repo := &PostgresRepo{db: gormDB}
	teardown := func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	}
	return repo, mock, teardown
}

func testCtx() context.Context {
	return context.Background()
}

// --- Error Classification Tests ---

func TestIsTransientError(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "Nil error", err: nil, expected: false},
		{name: "Context deadline exceeded", err: context.DeadlineExceeded, expected: true},
		{name: "Wrapped deadline exceeded", err: fmt.Errorf("operation failed: %w", context.DeadlineExceeded), expected: true},
		{name: "GORM record not found", err: gorm.ErrRecordNotFound, expected: false},
		{name: "PG connection exception (08000)", err: &pgconn.PgError{Code: "08000"}, expected: true},
		{name: "PG insufficient resources (53100)", err: &pgconn.PgError{Code: "53100"}, expected: true},
		{name: "PG deadlock detected (40P01)", err: &pgconn.PgError{Code: "40P01"}, expected: true},
		{name: "PG serialization failure (40001)", err: &pgconn.PgError{Code: "40001"}, expected: true},
		{name: "PG syntax error (42601)", err: &pgconn.PgError{Code: "42601"}, expected: false},
		{name: "Connection refused", err: errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), expected: true},
		{name: "I/O timeout", err: errors.New("read tcp: i/o timeout"), expected: true},
		{name: "Broken pipe", err: errors.New("write: broken pipe"), expected: true},
		{name: "DB starting up", err: errors.New("pq: the database system is starting up"), expected: true},
		{name: "Generic error", err: errors.New("some other database error"), expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, isTransientError(tc.err))
		})
	}
}

func TestCheckConstraintViolation(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{name: "Nil passes through", err: nil, sentinel: nil},
		{name: "Record not found", err: gorm.ErrRecordNotFound, sentinel: apperrors.ErrNotFound},
		{name: "Unique violation", err: &pgconn.PgError{Code: "23505", ConstraintName: "idx_external_message_id"}, sentinel: apperrors.ErrDuplicate},
		{name: "Foreign key violation", err: &pgconn.PgError{Code: "23503"}, sentinel: apperrors.ErrBadRequest},
		{name: "Not null violation", err: &pgconn.PgError{Code: "23502"}, sentinel: apperrors.ErrBadRequest},
		{name: "Value too long", err: &pgconn.PgError{Code: "22001"}, sentinel: apperrors.ErrBadRequest},
		{name: "Deadlock", err: &pgconn.PgError{Code: "40P01"}, sentinel: apperrors.ErrDatabase},
		{name: "Unknown pg error", err: &pgconn.PgError{Code: "42601"}, sentinel: apperrors.ErrDatabase},
		{name: "Plain error", err: errors.New("boom"), sentinel: apperrors.ErrDatabase},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := checkConstraintViolation(tc.err)
			if tc.sentinel == nil {
				assert.NoError(t, mapped)
				return
			}
			assert.ErrorIs(t, mapped, tc.sentinel)
		})
	}
}
