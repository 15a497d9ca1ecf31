package models

import (
	"time"
)

// Trial repräsentiert eine klinische Studie im kanonischen Schema.
// SourceID ist der natürliche Schlüssel (z.B. NCT-Nummer) für Upserts.
type Trial struct {
	ID        uint      `json:"-" gorm:"primaryKey"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`

	SourceID    string     `json:"source_id" gorm:"column:source_id;uniqueIndex;not null"`
	Title       string     `json:"title" gorm:"type:text;not null"`
	Condition   *string    `json:"condition,omitempty" gorm:"index"`
	Sponsor     *string    `json:"sponsor,omitempty" gorm:"index"`
	SponsorType *string    `json:"sponsor_type,omitempty" gorm:"index"`
	StartDate   *time.Time `json:"start_date,omitempty" gorm:"type:date;index"`
	Status      *string    `json:"status,omitempty" gorm:"index"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Trial) TableName() string {
	return "trials"
}
