package pipeline

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kanonische Feldnamen des Trial-Schemas.
const (
	FieldSourceID    = "source_id"
	FieldTitle       = "title"
	FieldCondition   = "condition"
	FieldSponsor     = "sponsor"
	FieldSponsorType = "sponsor_type"
	FieldStatus      = "status"
	FieldStartDate   = "start_date"
)

// fieldAliases bildet jedes kanonische Feld auf seine akzeptierten
// Upstream-Spaltennamen ab. Die Reihenfolge ist Priorität: der erste Alias,
// der in der Zeile vorhanden und nicht leer ist, gewinnt. Exakte,
// case-sensitive Treffer; kein Fuzzy-Matching.
var fieldAliases = map[string][]string{
	FieldSourceID:    {"NCT Number", "NCTId", "id", "trial_id", "nct_id", "source_id"},
	FieldTitle:       {"Study Title", "BriefTitle", "title", "brief_title", "study_title"},
	FieldCondition:   {"Conditions", "Condition", "condition", "conditions"},
	FieldSponsor:     {"Sponsor", "LeadSponsorName", "sponsor", "lead_sponsor", "org_name"},
	FieldSponsorType: {"sponsor_type", "funding_type"},
	FieldStatus:      {"Study Status", "OverallStatus", "status", "overall_status"},
	FieldStartDate:   {"Start Date", "StartDate", "start_date", "study_start", "start_date_str"},
}

// ResolvedRow enthält die auf das kanonische Schema abgebildeten Rohwerte
// einer Zeile. Fehlende Felder sind schlicht nicht in der Map enthalten.
type ResolvedRow map[string]string

// Get liefert den Wert eines kanonischen Feldes oder "".
func (r ResolvedRow) Get(field string) string {
	return r[field]
}

// Has prüft, ob ein kanonisches Feld aufgelöst wurde.
func (r ResolvedRow) Has(field string) bool {
	_, ok := r[field]
	return ok
}

// SchemaResolver bildet beliebige Upstream-Zeilen über Alias-Tabellen auf das
// kanonische Feld-Set ab.
type SchemaResolver struct {
	aliases map[string][]string
}

// NewSchemaResolver erstellt einen Resolver mit den Standard-Alias-Tabellen.
func NewSchemaResolver() *SchemaResolver {
	return &SchemaResolver{aliases: fieldAliases}
}

// Resolve löst eine rohe Zeile (Spaltenname -> Wert) in eine ResolvedRow auf.
// Kein Alias-Treffer für ein Feld ist kein Fehler; das Feld fehlt dann einfach.
func (s *SchemaResolver) Resolve(raw map[string]string) ResolvedRow {
	resolved := make(ResolvedRow, len(s.aliases))
	for field, aliases := range s.aliases {
		for _, alias := range aliases {
			if v, ok := raw[alias]; ok {
				cleaned := CleanValue(v)
				if cleaned != "" {
					resolved[field] = cleaned
					break
				}
			}
		}
	}
	return resolved
}

// CleanValue normalisiert einen Upstream-Wert: Unicode-NFC und Whitespace-Trim.
// Upstream-Exporte mischen teils komponierte und dekomponierte Umlaute.
func CleanValue(v string) string {
	return strings.TrimSpace(norm.NFC.String(v))
}
