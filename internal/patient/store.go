package patient

import (
	"context"
	"time"

	"github.com/nikhilbhutani/vaultmind/internal/models"
)

// Store persists patient records.
type Store interface {
	Create(ctx context.Context, p *models.Patient) error
	Get(ctx context.Context, id string) (*models.Patient, error)
	List(ctx context.Context, limit, offset int) ([]models.Patient, error)
	Count(ctx context.Context) (int, error)
	// SaveOutcome writes every outcome field and marks the record processed
	// in one write.
	SaveOutcome(ctx context.Context, id string, o models.Outcome, at time.Time) (*models.Patient, error)
	// ListProcessed returns processed patients, most recently processed first.
	ListProcessed(ctx context.Context, limit int) ([]models.Patient, error)
	ProcessedSince(ctx context.Context, since time.Time) ([]models.Patient, error)
	DeleteAll(ctx context.Context) (int64, error)
}
