package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nikhilbhutani/vaultmind/internal/database"
	"github.com/nikhilbhutani/vaultmind/internal/models"
)

const templateColumns = `version, body, description, parameters, usage_count, avg_rating,
	avg_cost, cost_samples, active, created_at, last_used`

type PostgresStore struct {
	db database.DBTX
}

func NewPostgresStore(db database.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, version string) (*models.PromptTemplate, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM prompt_templates WHERE version = $1`, version)
	t, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("prompt template %s: %w", version, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get prompt template: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.PromptTemplate, error) {
	rows, err := s.db.Query(ctx, `SELECT `+templateColumns+` FROM prompt_templates`)
	if err != nil {
		return nil, fmt.Errorf("list prompt templates: %w", err)
	}
	defer rows.Close()

	var out []models.PromptTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt template: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertIfAbsent(ctx context.Context, t models.PromptTemplate) (bool, error) {
	params, err := json.Marshal(t.Parameters)
	if err != nil {
		return false, fmt.Errorf("marshal parameters: %w", err)
	}

	tag, err := s.db.Exec(ctx,
		`INSERT INTO prompt_templates (version, body, description, parameters, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (version) DO NOTHING`,
		t.Version, t.Body, t.Description, params, t.Active, t.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert prompt template: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// IncrementUsage folds one rating into the running mean in a single statement;
// every SET expression reads the pre-update row.
func (s *PostgresStore) IncrementUsage(ctx context.Context, version string, rating int, at time.Time) (*models.PromptTemplate, error) {
	row := s.db.QueryRow(ctx,
		`UPDATE prompt_templates
		 SET avg_rating = (avg_rating * usage_count + $2) / (usage_count + 1),
		     usage_count = usage_count + 1,
		     last_used = $3
		 WHERE version = $1
		 RETURNING `+templateColumns,
		version, float64(rating), at,
	)
	t, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("prompt template %s: %w", version, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("record usage: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) AddCostSample(ctx context.Context, version string, cost float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE prompt_templates
		 SET avg_cost = (avg_cost * cost_samples + $2) / (cost_samples + 1),
		     cost_samples = cost_samples + 1
		 WHERE version = $1`,
		version, cost,
	)
	if err != nil {
		return fmt.Errorf("record cost: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("prompt template %s: %w", version, models.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) SetActive(ctx context.Context, version string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE prompt_templates SET active = (version = $1)
		 WHERE EXISTS (SELECT 1 FROM prompt_templates WHERE version = $1)`,
		version,
	)
	if err != nil {
		return fmt.Errorf("promote prompt template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("prompt template %s: %w", version, models.ErrNotFound)
	}
	return nil
}

func scanTemplate(row pgx.Row) (*models.PromptTemplate, error) {
	var t models.PromptTemplate
	var params []byte
	err := row.Scan(&t.Version, &t.Body, &t.Description, &params, &t.UsageCount, &t.AvgRating,
		&t.AvgCost, &t.CostSamples, &t.Active, &t.CreatedAt, &t.LastUsed)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &t.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters: %w", err)
		}
	}
	return &t, nil
}
