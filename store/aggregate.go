package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/Jseb0/Clinical-Data-Explorer/models"
)

// Gruppierbare Felder für Facetten-Auswertungen.
var facetColumns = map[string]string{
	"condition":    "condition",
	"sponsor":      "sponsor",
	"sponsor_type": "sponsor_type",
}

// CountByField gruppiert alle Trials nach dem Wert des Feldes und zählt pro
// Gruppe. Datensätze ohne Wert (NULL oder leer) werden ausgeschlossen.
// Sortierung: Anzahl absteigend, bei Gleichstand Gruppenlabel aufsteigend,
// damit die Ausgabe deterministisch ist. limit <= 0 bedeutet: alle Gruppen.
func (s *Store) CountByField(field string, limit int) ([]models.FacetCount, error) {
	col, ok := facetColumns[field]
	if !ok {
		return nil, fmt.Errorf("field %q is not groupable", field)
	}

	query := s.db.Model(&models.Trial{}).
		Select(col+" as name, COUNT(*) as count").
		Where(col+" IS NOT NULL AND "+col+" <> ''").
		Group(col).
		Order("count desc, " + col + " asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	counts := []models.FacetCount{}
	if err := query.Find(&counts).Error; err != nil {
		return nil, err
	}
	return counts, nil
}

// CountByPeriod gruppiert Trials mit Startdatum in Zeit-Buckets (YYYY-MM bei
// "month", YYYY bei "year") und liefert alle Buckets aufsteigend nach Label.
// Die Bucket-Bildung passiert in Go: strftime/to_char sind dialektabhängig,
// der Store muss aber auf Postgres wie SQLite laufen.
func (s *Store) CountByPeriod(interval string) ([]models.PeriodCount, error) {
	layout := "2006-01"
	if interval == "year" {
		layout = "2006"
	}

	var dates []time.Time
	err := s.db.Model(&models.Trial{}).
		Where("start_date IS NOT NULL").
		Pluck("start_date", &dates).Error
	if err != nil {
		return nil, err
	}

	buckets := make(map[string]int64)
	for _, d := range dates {
		buckets[d.Format(layout)]++
	}

	counts := make([]models.PeriodCount, 0, len(buckets))
	for period, count := range buckets {
		counts = append(counts, models.PeriodCount{Period: period, Count: count})
	}
	// Lexikographisch == chronologisch bei diesen Formaten.
	sort.Slice(counts, func(i, j int) bool { return counts[i].Period < counts[j].Period })
	return counts, nil
}
