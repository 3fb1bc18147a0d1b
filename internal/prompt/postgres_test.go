package prompt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nikhilbhutani/vaultmind/internal/models"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var templateCols = []string{"version", "body", "description", "parameters", "usage_count", "avg_rating",
	"avg_cost", "cost_samples", "active", "created_at", "last_used"}

func TestPostgresIncrementUsageIsSingleStatement(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	params, _ := json.Marshal(models.GenerationParams{Temperature: 0.6, MaxTokens: 600})
	mock.ExpectQuery(`UPDATE prompt_templates SET avg_rating = \(avg_rating \* usage_count \+ \$2\) / \(usage_count \+ 1\), usage_count = usage_count \+ 1`).
		WithArgs("v2.0", 4.0, at).
		WillReturnRows(pgxmock.NewRows(templateCols).
			AddRow("v2.0", "body", "desc", params, 3, 4.5, 0.0, 0, false, at, &at))

	store := NewPostgresStore(mock)
	got, err := store.IncrementUsage(context.Background(), "v2.0", 4, at)
	require.NoError(t, err)
	assert.Equal(t, 3, got.UsageCount)
	assert.Equal(t, 4.5, got.AvgRating)
	assert.Equal(t, 600, got.Parameters.MaxTokens)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIncrementUsageUnknownVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`UPDATE prompt_templates`).
		WithArgs("v9.0", 3.0, pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err = NewPostgresStore(mock).IncrementUsage(context.Background(), "v9.0", 3, time.Now())
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertIfAbsent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tmpl := Templates(Catalog[:1], time.Now())[0]
	mock.ExpectExec(`INSERT INTO prompt_templates .* ON CONFLICT \(version\) DO NOTHING`).
		WithArgs(tmpl.Version, tmpl.Body, tmpl.Description, pgxmock.AnyArg(), true, tmpl.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := NewPostgresStore(mock).InsertIfAbsent(context.Background(), tmpl)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE prompt_templates SET active = \(version = \$1\)`).
		WithArgs("v3.0").
		WillReturnResult(pgxmock.NewResult("UPDATE", 4))
	mock.ExpectExec(`UPDATE prompt_templates SET active`).
		WithArgs("v8.0").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	store := NewPostgresStore(mock)
	require.NoError(t, store.SetActive(context.Background(), "v3.0"))
	assert.ErrorIs(t, store.SetActive(context.Background(), "v8.0"), models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddCostSample(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`SET avg_cost = \(avg_cost \* cost_samples \+ \$2\) / \(cost_samples \+ 1\)`).
		WithArgs("v1.0", 0.0025).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, NewPostgresStore(mock).AddCostSample(context.Background(), "v1.0", 0.0025))
	assert.NoError(t, mock.ExpectationsWereMet())
}
