package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/data-hunter/internal/hunter"
)

func newMockStore(t *testing.T) (*SourceStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewSourceStoreWithPool(mock, "", "")
	require.NoError(t, err)
	return store, mock
}

func TestNewSourceStoreWithPoolValidates(t *testing.T) {
	t.Parallel()

	_, err := NewSourceStoreWithPool(nil, "", "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewSourceStoreWithPool(mock, "sources; DROP TABLE x", "")
	require.Error(t, err)
	_, err = NewSourceStoreWithPool(mock, "", "1sessions")
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS hunter_sessions").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS hunter_sources").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	started := time.Unix(1700000000, 0).UTC()
	found := started.Add(time.Second)
	finished := started.Add(time.Minute)
	src := hunter.Source{URL: "https://data.example.gov/a", Topic: hunter.TopicGovernment, Description: "a"}

	mock.ExpectExec("INSERT INTO hunter_sessions").
		WithArgs("s1", started).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO hunter_sources").
		WithArgs("s1", src.URL, src.Topic, src.Description, found).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE hunter_sessions").
		WithArgs("s1", finished, 1, 10, true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ctx := context.Background()
	require.NoError(t, store.StartSession(ctx, "s1", started))
	require.NoError(t, store.RecordSource(ctx, "s1", src, found))
	require.NoError(t, store.FinishSession(ctx, "s1", finished, hunter.Status{Count: 1, Target: 10, HasCustomTopics: true}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSourceErrors(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	require.Error(t, store.RecordSource(context.Background(), "s1", hunter.Source{}, time.Now()))

	mock.ExpectExec("INSERT INTO hunter_sources").
		WithArgs("s1", "https://a.example/x", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))
	err := store.RecordSource(context.Background(), "s1", hunter.Source{URL: "https://a.example/x"}, time.Now())
	require.ErrorContains(t, err, "insert source")
	require.ErrorContains(t, err, "connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewSourceStoreWithPool(mock, "", "")
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))
	mock.ExpectPing().WillReturnError(errors.New("down"))
	require.Error(t, store.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
