package pipeline

import (
	"fmt"

	"github.com/Jseb0/Clinical-Data-Explorer/models"
)

// RowRejection beschreibt eine abgelehnte Zeile. Sie wird gezählt und
// verworfen, bricht den Lauf aber nie ab.
type RowRejection struct {
	Reason string
}

func (r *RowRejection) Error() string {
	return r.Reason
}

// BuildTrial validiert eine aufgelöste Zeile und baut daraus einen kanonischen
// Trial. source_id und title sind Pflicht; alles andere ist optional und wird
// unverändert übernommen (inklusive "kein Datum").
func BuildTrial(row ResolvedRow) (*models.Trial, *RowRejection) {
	sourceID := row.Get(FieldSourceID)
	if sourceID == "" {
		return nil, &RowRejection{Reason: "missing required field: source_id"}
	}
	title := row.Get(FieldTitle)
	if title == "" {
		return nil, &RowRejection{Reason: fmt.Sprintf("missing required field: title (source_id=%s)", sourceID)}
	}

	trial := &models.Trial{
		SourceID: sourceID,
		Title:    title,
	}
	if v := row.Get(FieldCondition); v != "" {
		trial.Condition = &v
	}
	if v := row.Get(FieldSponsor); v != "" {
		trial.Sponsor = &v
	}
	if v := row.Get(FieldSponsorType); v != "" {
		trial.SponsorType = &v
	}
	if v := row.Get(FieldStatus); v != "" {
		trial.Status = &v
	}
	// DateUnparseable ist kein Ablehnungsgrund, das Feld bleibt dann leer.
	trial.StartDate = ParseDate(row.Get(FieldStartDate))

	return trial, nil
}
