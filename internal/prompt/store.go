package prompt

import (
	"context"
	"time"

	"github.com/nikhilbhutani/vaultmind/internal/models"
)

// Store persists prompt templates. Implementations must apply the running
// mean updates atomically with respect to concurrent callers.
type Store interface {
	Get(ctx context.Context, version string) (*models.PromptTemplate, error)
	List(ctx context.Context) ([]models.PromptTemplate, error)
	InsertIfAbsent(ctx context.Context, t models.PromptTemplate) (bool, error)
	IncrementUsage(ctx context.Context, version string, rating int, at time.Time) (*models.PromptTemplate, error)
	AddCostSample(ctx context.Context, version string, cost float64) error
	SetActive(ctx context.Context, version string) error
}
