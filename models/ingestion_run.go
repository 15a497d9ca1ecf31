package models

import (
	"time"

	"gorm.io/datatypes"
)

// Status-Werte für IngestionRun.
const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// IngestionRun protokolliert das Ergebnis eines Ingestion-Laufs.
type IngestionRun struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`

	SourceURL string `json:"source_url"`
	Status    string `json:"status" gorm:"index"`
	Error     string `json:"error,omitempty" gorm:"type:text"`

	Inserted    int `json:"inserted"`
	Updated     int `json:"updated"`
	BadRows     int `json:"bad_rows"`
	TotalParsed int `json:"total_parsed"`

	DurationMS int64 `json:"duration_ms"`

	// Stichprobe abgelehnter Zeilen (Gründe) zur Fehlersuche
	RejectionSamples datatypes.JSON `json:"rejection_samples,omitempty" gorm:"type:jsonb"`

	// Ablageort des rohen CSV-Snapshots, falls archiviert
	SnapshotLink string `json:"snapshot_link,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (IngestionRun) TableName() string {
	return "ingestion_runs"
}
