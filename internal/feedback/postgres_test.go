package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/vaultmind/internal/models"
)

func TestPostgresStoreAppend(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO feedback`).
		WithArgs("f1", "p1", "dr-1", 4, "", "good", at, "v2.0").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = NewPostgresStore(mock).Append(context.Background(), &models.Feedback{
		ID: "f1", PatientID: "p1", DoctorID: "dr-1", AccuracyRating: 4,
		SummaryQuality: "good", Timestamp: at, PromptVersion: "v2.0",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSince(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	since := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "patient_id", "doctor_id", "accuracy_rating", "corrections", "summary_quality", "timestamp", "prompt_version"}).
		AddRow("f1", "p1", "dr-1", 5, "", "good", since.Add(time.Hour), "v1.0").
		AddRow("f2", "p2", "dr-2", 2, "wrong dose", "poor", since.Add(2*time.Hour), "v2.0")
	mock.ExpectQuery(`SELECT .* FROM feedback WHERE timestamp > \$1 ORDER BY timestamp`).
		WithArgs(since).
		WillReturnRows(rows)

	got, err := NewPostgresStore(mock).Since(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 5, got[0].AccuracyRating)
	assert.Equal(t, "wrong dose", got[1].Corrections)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSnapshots(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO performance_snapshots`).
		WithArgs("s1", at, 3, 4.5, 0.003, 2000.0, "v2.0").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT .* FROM performance_snapshots WHERE date > \$1 ORDER BY date`).
		WithArgs(at.Add(-time.Hour)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "date", "total_processed", "avg_accuracy", "avg_cost", "avg_duration_ms", "prompt_version"}).
			AddRow("s1", at, 3, 4.5, 0.003, 2000.0, "v2.0"))

	store := NewPostgresStore(mock)
	require.NoError(t, store.AppendSnapshot(context.Background(), &models.PerformanceSnapshot{
		ID: "s1", Date: at, TotalProcessed: 3, AvgAccuracy: 4.5, AvgCost: 0.003, AvgDurationMs: 2000, PromptVersion: "v2.0",
	}))

	snaps, err := store.SnapshotsSince(context.Background(), at.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 3, snaps[0].TotalProcessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
