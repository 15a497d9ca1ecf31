package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/Jseb0/Clinical-Data-Explorer/models"
	"github.com/Jseb0/Clinical-Data-Explorer/store"
)

// maxRejectionSamples begrenzt die protokollierte Stichprobe abgelehnter Zeilen.
const maxRejectionSamples = 10

// RunResult fasst einen Ingestion-Lauf zusammen.
// Es gilt immer TotalParsed == Inserted + Updated + BadRows.
type RunResult struct {
	Inserted    int `json:"inserted"`
	Updated     int `json:"updated"`
	BadRows     int `json:"bad_rows"`
	TotalParsed int `json:"total_parsed"`
}

// SnapshotArchiver legt den rohen CSV-Export ab, bevor er verarbeitet wird.
// Implementiert vom S3-Storage; nil bedeutet: kein Archiv.
type SnapshotArchiver interface {
	ArchiveSnapshot(ctx context.Context, name string, data []byte) (string, error)
}

// Engine orchestriert einen Ingestion-Lauf:
// Fetch -> CSV-Stream -> Resolve -> Datums-Normalisierung -> Validierung -> Upsert.
// Eine einzelne kaputte Zeile bricht den Lauf nie ab.
type Engine struct {
	SourceURL string
	Store     *store.Store
	Fetcher   *Fetcher
	Archiver  SnapshotArchiver
	Logger    *zap.Logger

	resolver *SchemaResolver
}

// NewEngine erstellt eine Engine. sourceURL und timeout kommen als explizite
// Werte vom Entry-Point; die Engine liest selbst keine Konfiguration.
func NewEngine(sourceURL string, timeout time.Duration, st *store.Store, archiver SnapshotArchiver, logger *zap.Logger) *Engine {
	return &Engine{
		SourceURL: sourceURL,
		Store:     st,
		Fetcher:   NewFetcher(timeout),
		Archiver:  archiver,
		Logger:    logger,
		resolver:  NewSchemaResolver(),
	}
}

// Run führt einen kompletten Ingestion-Lauf aus. Ein Fetch-Fehler ist fatal
// (kein Upsert, Fehler als Rückgabewert); abgelehnte Zeilen werden gezählt und
// verworfen. Jeder Lauf wird als IngestionRun protokolliert.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	log := e.Logger.With(zap.String("source_url", e.SourceURL))
	log.Info("Starting ingestion run")
	started := time.Now()

	data, err := e.Fetcher.FetchCSV(ctx, e.SourceURL)
	if err != nil {
		log.Error("CSV fetch failed, aborting run", zap.Error(err))
		e.recordRun(&RunResult{}, models.RunStatusFailed, err.Error(), nil, "", time.Since(started))
		return nil, err
	}

	snapshotLink := ""
	if e.Archiver != nil {
		name := fmt.Sprintf("trials-%s.csv.gz", started.UTC().Format("2006-01-02T15-04-05Z"))
		link, err := e.Archiver.ArchiveSnapshot(ctx, name, data)
		if err != nil {
			// Archivfehler kostet nur den Snapshot, nicht den Lauf.
			log.Warn("Snapshot archiving failed", zap.Error(err))
		} else {
			snapshotLink = link
			log.Info("Raw export archived", zap.String("snapshot", link))
		}
	}

	result := &RunResult{}
	var samples []string

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		wrapped := &FetchFailure{URL: e.SourceURL, Err: fmt.Errorf("reading csv header: %w", err)}
		log.Error("CSV export has no readable header", zap.Error(wrapped))
		e.recordRun(result, models.RunStatusFailed, wrapped.Error(), nil, snapshotLink, time.Since(started))
		return nil, wrapped
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.BadRows++
			samples = appendSample(samples, fmt.Sprintf("malformed csv line: %v", err))
			continue
		}

		raw := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				raw[col] = record[i]
			}
		}

		trial, rejection := BuildTrial(e.resolver.Resolve(raw))
		if rejection != nil {
			result.BadRows++
			samples = appendSample(samples, rejection.Reason)
			log.Debug("Row rejected", zap.String("reason", rejection.Reason))
			continue
		}

		outcome, err := e.Store.UpsertTrial(trial)
		if err != nil {
			// Ein Storage-Fehler beim Upsert ist ein Implementierungsfehler
			// (Uniqueness löst der Upsert per Definition auf) und damit fatal.
			log.Error("Upsert failed, aborting run", zap.String("source_id", trial.SourceID), zap.Error(err))
			e.recordRun(result, models.RunStatusFailed, err.Error(), samples, snapshotLink, time.Since(started))
			return nil, err
		}
		switch outcome {
		case store.UpsertInserted:
			result.Inserted++
		case store.UpsertUpdated:
			result.Updated++
		}
	}

	result.TotalParsed = result.Inserted + result.Updated + result.BadRows
	e.recordRun(result, models.RunStatusSucceeded, "", samples, snapshotLink, time.Since(started))

	log.Info("Ingestion run completed",
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("bad_rows", result.BadRows),
		zap.Int("total_parsed", result.TotalParsed),
	)
	return result, nil
}

// recordRun persistiert das Laufprotokoll. Fehler hier kosten nur die Historie.
func (e *Engine) recordRun(res *RunResult, status, errText string, samples []string, snapshotLink string, elapsed time.Duration) {
	run := &models.IngestionRun{
		SourceURL:    e.SourceURL,
		Status:       status,
		Error:        errText,
		Inserted:     res.Inserted,
		Updated:      res.Updated,
		BadRows:      res.BadRows,
		TotalParsed:  res.Inserted + res.Updated + res.BadRows,
		DurationMS:   elapsed.Milliseconds(),
		SnapshotLink: snapshotLink,
	}
	if len(samples) > 0 {
		if b, err := json.Marshal(samples); err == nil {
			run.RejectionSamples = b
		}
	}
	if err := e.Store.SaveRun(run); err != nil {
		e.Logger.Warn("Failed to persist ingestion run report", zap.Error(err))
	}
}

func appendSample(samples []string, reason string) []string {
	if len(samples) >= maxRejectionSamples {
		return samples
	}
	return append(samples, reason)
}
