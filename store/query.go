package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/Jseb0/Clinical-Data-Explorer/models"
)

// Sortierbare Felder der Trial-Suche.
var sortColumns = map[string]string{
	"start_date": "start_date",
	"title":      "title",
	"sponsor":    "sponsor",
	"status":     "status",
}

// SortableField prüft, ob nach dem Feld sortiert werden darf.
func SortableField(name string) bool {
	_, ok := sortColumns[name]
	return ok
}

// TrialFilter bündelt alle Parameter der Trial-Suche. Filter sind optional
// und werden mit UND verknüpft.
type TrialFilter struct {
	Q         string
	Condition string
	Sponsor   string
	Status    string
	StartFrom *time.Time
	StartTo   *time.Time

	SortBy  string // start_date|title|sponsor|status
	SortDir string // asc|desc
	Page    int
	Limit   int
}

// Search führt die gefilterte, sortierte, paginierte Suche aus und gibt die
// Treffer der Seite plus die Gesamtzahl vor Pagination zurück.
// Datensätze ohne Wert im Sortierfeld stehen in beiden Richtungen immer am
// Ende (nulls last).
func (s *Store) Search(f TrialFilter) ([]models.Trial, int64, error) {
	query := s.db.Model(&models.Trial{})

	// LOWER(...) LIKE statt ILIKE, damit dieselbe Semantik auf Postgres und
	// SQLite gilt.
	if f.Q != "" {
		query = query.Where("LOWER(title) LIKE ?", containsPattern(f.Q))
	}
	if f.Condition != "" {
		query = query.Where("LOWER(condition) LIKE ?", containsPattern(f.Condition))
	}
	if f.Sponsor != "" {
		query = query.Where("LOWER(sponsor) LIKE ?", containsPattern(f.Sponsor))
	}
	if f.Status != "" {
		query = query.Where("LOWER(status) LIKE ?", containsPattern(f.Status))
	}
	if f.StartFrom != nil {
		query = query.Where("start_date >= ?", *f.StartFrom)
	}
	if f.StartTo != nil {
		query = query.Where("start_date <= ?", *f.StartTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "start_date"
	}
	dir := "desc"
	if strings.EqualFold(f.SortDir, "asc") {
		dir = "asc"
	}
	// CASE-Ausdruck statt NULLS LAST, das SQLite-Pendant dazu fehlt älteren
	// Versionen. Tie-Break über id für stabile Seiten.
	order := fmt.Sprintf("CASE WHEN %s IS NULL THEN 1 ELSE 0 END, %s %s, id asc", col, col, dir)

	offset := (f.Page - 1) * f.Limit
	var items []models.Trial
	err := query.Order(order).Offset(offset).Limit(f.Limit).Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func containsPattern(v string) string {
	return "%" + strings.ToLower(v) + "%"
}
