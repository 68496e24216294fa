package limiter

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestAllow_NoRow_Allows(t *testing.T) {
	mock := newMock(t)
	// An empty row set makes Scan return pgx.ErrNoRows, the unknown-pair path.
	mock.ExpectQuery("SELECT blocked_until FROM bridge_limiter").
		WithArgs("owner", []byte("h")).
		WillReturnRows(pgxmock.NewRows([]string{"blocked_until"}))

	l := NewPGWithQuerier(mock, 15*time.Minute, 5, 15*time.Minute)
	ok, dur, err := l.Allow(context.Background(), "owner", []byte("h"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, dur)
}

func TestAllow_BlockedUntilFuture(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("SELECT blocked_until FROM bridge_limiter").
		WithArgs("owner", []byte("h")).
		WillReturnRows(pgxmock.NewRows([]string{"blocked_until"}).
			AddRow(time.Now().Add(10 * time.Minute)))

	l := NewPGWithQuerier(mock, 15*time.Minute, 5, 15*time.Minute)
	ok, dur, err := l.Allow(context.Background(), "owner", []byte("h"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Greater(t, dur, time.Duration(0))
}

func TestAllow_ExpiredBlock_Allows(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("SELECT blocked_until FROM bridge_limiter").
		WithArgs("owner", []byte("h")).
		WillReturnRows(pgxmock.NewRows([]string{"blocked_until"}).
			AddRow(time.Now().Add(-time.Minute)))

	l := NewPGWithQuerier(mock, 15*time.Minute, 5, 15*time.Minute)
	ok, _, err := l.Allow(context.Background(), "owner", []byte("h"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSuccess_ResetsCounters(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("INSERT INTO bridge_limiter").
		WithArgs("owner", []byte("h")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	l := NewPGWithQuerier(mock, 15*time.Minute, 5, 15*time.Minute)
	require.NoError(t, l.Success(context.Background(), "owner", []byte("h")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailure_IncrementsWithoutBlock(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("INSERT INTO bridge_limiter").
		WithArgs("owner", []byte("h"), 5*time.Minute).
		WillReturnRows(pgxmock.NewRows([]string{"fail_count"}).AddRow(2))

	l := NewPGWithQuerier(mock, 5*time.Minute, 5, 10*time.Minute)
	blocked, dur, err := l.Failure(context.Background(), "owner", []byte("h"))
	require.NoError(t, err)
	require.False(t, blocked)
	require.Zero(t, dur)
}

func TestFailure_BlocksAtThreshold(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("INSERT INTO bridge_limiter").
		WithArgs("owner", []byte("h"), 5*time.Minute).
		WillReturnRows(pgxmock.NewRows([]string{"fail_count"}).AddRow(5))
	mock.ExpectExec("UPDATE bridge_limiter SET blocked_until").
		WithArgs("owner", []byte("h"), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	l := NewPGWithQuerier(mock, 5*time.Minute, 5, 10*time.Minute)
	blocked, dur, err := l.Failure(context.Background(), "owner", []byte("h"))
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, 10*time.Minute, dur)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHashIP_Determinism(t *testing.T) {
	a := HashIP("1.2.3.4:123")
	b := HashIP("1.2.3.4:123")
	c := HashIP("5.6.7.8:321")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, a, 32)
}
