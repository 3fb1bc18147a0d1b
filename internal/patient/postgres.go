package patient

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

const patientColumns = `id, name_token, ssn_token, dob_token, address_token, condition, department,
	priority, assigned_doctor, lab_results, source, created_at, processed, processed_at,
	COALESCE(ai_summary, ''), tokens_input, tokens_output, cost_usd, COALESCE(model, ''),
	processing_duration_ms, COALESCE(prompt_version, '')`

type PostgresStore struct {
	db database.DBTX
}

func NewPostgresStore(db database.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, p *models.Patient) error {
	labs, err := json.Marshal(labsOrEmpty(p.LabResults))
	if err != nil {
		return fmt.Errorf("marshal lab results: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO patients (id, name_token, ssn_token, dob_token, address_token, condition, department,
		   priority, assigned_doctor, lab_results, source, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.NameToken, p.SSNToken, p.DOBToken, p.AddressToken, p.Condition, p.Department,
		p.Priority, p.AssignedDoctor, labs, p.Source, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Patient, error) {
	p, err := scanPatient(s.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("patient %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]models.Patient, error) {
	return s.query(ctx, `SELECT `+patientColumns+` FROM patients
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM patients`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) SaveOutcome(ctx context.Context, id string, o models.Outcome, at time.Time) (*models.Patient, error) {
	p, err := scanPatient(s.db.QueryRow(ctx,
		`UPDATE patients
		 SET processed = true,
		     processed_at = $2,
		     ai_summary = $3,
		     tokens_input = $4,
		     tokens_output = $5,
		     cost_usd = $6,
		     model = $7,
		     processing_duration_ms = $8,
		     prompt_version = $9
		 WHERE id = $1
		 RETURNING `+patientColumns,
		id, at, o.Summary, o.Tokens.Input, o.Tokens.Output, o.CostUSD, o.Model, o.Duration.Milliseconds(), o.PromptVersion,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("patient %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("save outcome: %w", errors.Join(models.ErrPersistence, err))
	}
	return p, nil
}

func (s *PostgresStore) ListProcessed(ctx context.Context, limit int) ([]models.Patient, error) {
	return s.query(ctx, `SELECT `+patientColumns+` FROM patients
		WHERE processed ORDER BY processed_at DESC LIMIT $1`, limit)
}

func (s *PostgresStore) ProcessedSince(ctx context.Context, since time.Time) ([]models.Patient, error) {
	return s.query(ctx, `SELECT `+patientColumns+` FROM patients
		WHERE processed AND processed_at >= $1 ORDER BY processed_at`, since)
}

func (s *PostgresStore) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM patients`)
	if err != nil {
		return 0, fmt.Errorf("delete patients: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]models.Patient, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	var out []models.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPatient(row pgx.Row) (*models.Patient, error) {
	var p models.Patient
	var labs []byte
	var tokensIn, tokensOut *int
	err := row.Scan(&p.ID, &p.NameToken, &p.SSNToken, &p.DOBToken, &p.AddressToken, &p.Condition, &p.Department,
		&p.Priority, &p.AssignedDoctor, &labs, &p.Source, &p.CreatedAt, &p.Processed, &p.ProcessedAt,
		&p.AISummary, &tokensIn, &tokensOut, &p.CostUSD, &p.Model,
		&p.ProcessingDurationMs, &p.PromptVersion)
	if err != nil {
		return nil, err
	}
	if len(labs) > 0 {
		if err := json.Unmarshal(labs, &p.LabResults); err != nil {
			return nil, fmt.Errorf("decode lab results: %w", err)
		}
	}
	if tokensIn != nil || tokensOut != nil {
		p.TokensUsed = &models.TokenUsage{}
		if tokensIn != nil {
			p.TokensUsed.Input = *tokensIn
		}
		if tokensOut != nil {
			p.TokensUsed.Output = *tokensOut
		}
	}
	return &p, nil
}

func labsOrEmpty(labs []models.LabResult) []models.LabResult {
	if labs == nil {
		return []models.LabResult{}
	}
	return labs
}
