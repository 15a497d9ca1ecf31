package models

// TrialsPage ist die paginierte Antwort der Trial-Suche.
type TrialsPage struct {
	Page  int     `json:"page"`
	Limit int     `json:"limit"`
	Total int64   `json:"total"`
	Pages int     `json:"pages"`
	Items []Trial `json:"items"`
}

// FacetCount ist ein Gruppenzähler für kategorische Auswertungen.
type FacetCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// SponsorTypeCount ist die Aufschlüsselung nach Sponsor-Typ.
type SponsorTypeCount struct {
	SponsorType string `json:"sponsor_type"`
	Count       int64  `json:"count"`
}

// PeriodCount ist ein Zeit-Bucket (YYYY-MM oder YYYY) mit Anzahl.
type PeriodCount struct {
	Period string `json:"period"`
	Count  int64  `json:"count"`
}
