package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/nikhilbhutani/vaultmind/internal/database"
	"github.com/nikhilbhutani/vaultmind/internal/models"
)

type PostgresStore struct {
	db database.DBTX
}

func NewPostgresStore(db database.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, f *models.Feedback) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO feedback (id, patient_id, doctor_id, accuracy_rating, corrections, summary_quality, timestamp, prompt_version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, f.PatientID, f.DoctorID, f.AccuracyRating, f.Corrections, f.SummaryQuality, f.Timestamp, f.PromptVersion,
	)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (s *PostgresStore) Since(ctx context.Context, since time.Time) ([]models.Feedback, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, patient_id, doctor_id, accuracy_rating, corrections, summary_quality, timestamp, prompt_version
		 FROM feedback WHERE timestamp > $1 ORDER BY timestamp`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	out := []models.Feedback{}
	for rows.Next() {
		var f models.Feedback
		if err := rows.Scan(&f.ID, &f.PatientID, &f.DoctorID, &f.AccuracyRating, &f.Corrections,
			&f.SummaryQuality, &f.Timestamp, &f.PromptVersion); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendSnapshot(ctx context.Context, snap *models.PerformanceSnapshot) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO performance_snapshots (id, date, total_processed, avg_accuracy, avg_cost, avg_duration_ms, prompt_version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		snap.ID, snap.Date, snap.TotalProcessed, snap.AvgAccuracy, snap.AvgCost, snap.AvgDurationMs, snap.PromptVersion,
	)
	if err != nil {
		return fmt.Errorf("insert performance snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) SnapshotsSince(ctx context.Context, since time.Time) ([]models.PerformanceSnapshot, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, date, total_processed, avg_accuracy, avg_cost, avg_duration_ms, prompt_version
		 FROM performance_snapshots WHERE date > $1 ORDER BY date`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("list performance snapshots: %w", err)
	}
	defer rows.Close()

	out := []models.PerformanceSnapshot{}
	for rows.Next() {
		var snap models.PerformanceSnapshot
		if err := rows.Scan(&snap.ID, &snap.Date, &snap.TotalProcessed, &snap.AvgAccuracy, &snap.AvgCost,
			&snap.AvgDurationMs, &snap.PromptVersion); err != nil {
			return nil, fmt.Errorf("scan performance snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
