package pipeline

import (
	"time"
)

// dateLayouts sind die akzeptierten Datumsformate in Prioritätsreihenfolge.
var dateLayouts = []string{
	"2006-01-02", // Jahr-Monat-Tag mit Bindestrichen
	"02/01/2006", // Tag/Monat/Jahr mit Schrägstrichen
	"2006/01/02", // Jahr/Monat/Tag mit Schrägstrichen
}

// ParseDate normalisiert einen freien Datums-String auf ein kanonisches Datum.
// Leerer Input ergibt nil (kein Datum, kein Fehler). Greift keines der
// Formate, wird noch ein ISO-Parse der ersten 10 Zeichen versucht. Schlägt
// auch das fehl, ist das Ergebnis nil: ein kaputtes Datum degradiert den
// Datensatz, es lehnt ihn nicht ab.
func ParseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	if len(value) >= 10 {
		if t, err := time.Parse("2006-01-02", value[:10]); err == nil {
			return &t
		}
	}
	return nil
}
