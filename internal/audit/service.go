package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/vaultmind/internal/database"
	"github.com/nikhilbhutani/vaultmind/internal/models"
)

// Ledger is the append-only record of billed processing runs. Every run
// appends, so re-processing a patient is visible as a second charge.
type Ledger interface {
	Record(ctx context.Context, charge models.Charge) (*models.Charge, error)
	ListByPatient(ctx context.Context, patientID string) ([]models.Charge, error)
}

type PostgresLedger struct {
	db database.DBTX
}

func NewPostgresLedger(db database.DBTX) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Record(ctx context.Context, c models.Charge) (*models.Charge, error) {
	fillCharge(&c)
	_, err := l.db.Exec(ctx,
		`INSERT INTO processing_charges (id, patient_id, tier, model, tokens_input, tokens_output, cost_usd, prompt_version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.PatientID, c.Tier, c.Model, c.Tokens.Input, c.Tokens.Output, c.CostUSD, c.PromptVersion, c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert processing charge: %w", err)
	}
	return &c, nil
}

func (l *PostgresLedger) ListByPatient(ctx context.Context, patientID string) ([]models.Charge, error) {
	rows, err := l.db.Query(ctx,
		`SELECT id, patient_id, tier, model, tokens_input, tokens_output, cost_usd, prompt_version, created_at
		 FROM processing_charges WHERE patient_id = $1 ORDER BY created_at`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("list processing charges: %w", err)
	}
	defer rows.Close()

	var out []models.Charge
	for rows.Next() {
		var c models.Charge
		if err := rows.Scan(&c.ID, &c.PatientID, &c.Tier, &c.Model, &c.Tokens.Input, &c.Tokens.Output,
			&c.CostUSD, &c.PromptVersion, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan processing charge: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type MemoryLedger struct {
	mu      sync.Mutex
	charges []models.Charge
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) Record(_ context.Context, c models.Charge) (*models.Charge, error) {
	fillCharge(&c)
	l.mu.Lock()
	l.charges = append(l.charges, c)
	l.mu.Unlock()
	return &c, nil
}

func (l *MemoryLedger) ListByPatient(_ context.Context, patientID string) ([]models.Charge, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []models.Charge
	for _, c := range l.charges {
		if c.PatientID == patientID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func fillCharge(c *models.Charge) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
}
