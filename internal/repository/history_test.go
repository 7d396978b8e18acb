package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/repository"
)

func setupHistoryRepo(t *testing.T) (*repository.HistoryRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return repository.NewHistoryRepository(db, zap.NewNop()), mock
}

func TestQueryTrend_BucketsInAscendingOrder(t *testing.T) {
	repo, mock := setupHistoryRepo(t)

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	b0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	b1 := b0.Add(5 * time.Minute)

	mock.ExpectQuery(`FROM point_history`).
		WithArgs(int64(42), start, end, 300).
		WillReturnRows(sqlmock.NewRows([]string{"bucket_time", "avg_value", "cnt"}).
			AddRow(b0, 21.5, int64(60)).
			AddRow(b1, 22.1, int64(60)))

	buckets, err := repo.QueryTrend(context.Background(), 42, start, end, 300)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.True(t, buckets[0].BucketTime.Before(buckets[1].BucketTime))
	assert.Equal(t, 21.5, buckets[0].AvgValue)
	assert.Equal(t, int64(60), buckets[1].Count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryTrend_RejectsNonPositiveInterval(t *testing.T) {
	repo, _ := setupHistoryRepo(t)

	_, err := repo.QueryTrend(context.Background(), 1, time.Now().Add(-time.Hour), time.Now(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrValidation)
}

func TestQueryStats_EmptyRangeIsZero(t *testing.T) {
	repo, mock := setupHistoryRepo(t)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	mock.ExpectQuery(`SELECT MIN\(value\), MAX\(value\), AVG\(value\), COUNT\(\*\)`).
		WithArgs(int64(7), start, end).
		WillReturnRows(sqlmock.NewRows([]string{"min", "max", "avg", "count"}).
			AddRow(nil, nil, nil, int64(0)))

	stats, err := repo.QueryStats(context.Background(), 7, start, end)
	require.NoError(t, err)
	assert.Zero(t, stats.Min)
	assert.Zero(t, stats.Max)
	assert.Zero(t, stats.Avg)
	assert.Zero(t, stats.Count)
	require.NoError(t, mock.ExpectationsWereMet())
}
