package models

import (
	"time"
)

type Feedback struct {
	ID             string    `json:"id" db:"id"`
	PatientID      string    `json:"patient_id" db:"patient_id"`
	DoctorID       string    `json:"doctor_id" db:"doctor_id"`
	AccuracyRating int       `json:"accuracy_rating" db:"accuracy_rating"`
	Corrections    string    `json:"corrections,omitempty" db:"corrections"`
	SummaryQuality string    `json:"summary_quality" db:"summary_quality"`
	Timestamp      time.Time `json:"timestamp" db:"timestamp"`
	PromptVersion  string    `json:"prompt_version" db:"prompt_version"`
}

type PerformanceSnapshot struct {
	ID             string    `json:"id" db:"id"`
	Date           time.Time `json:"date" db:"date"`
	TotalProcessed int       `json:"total_processed" db:"total_processed"`
	AvgAccuracy    float64   `json:"avg_accuracy" db:"avg_accuracy"`
	AvgCost        float64   `json:"avg_cost" db:"avg_cost"`
	AvgDurationMs  float64   `json:"avg_duration_ms" db:"avg_duration_ms"`
	PromptVersion  string    `json:"prompt_version" db:"prompt_version"`
}
