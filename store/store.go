package store

import (
	"errors"
	"sync"

	"gorm.io/gorm"

	"github.com/Jseb0/Clinical-Data-Explorer/models"
)

// UpsertOutcome unterscheidet Insert und Update beim Upsert.
type UpsertOutcome int

const (
	UpsertInserted UpsertOutcome = iota
	UpsertUpdated
)

// Store kapselt den Zugriff auf die Trial-Tabelle. Upserts für dieselbe
// source_id werden über einen Key-Mutex serialisiert, damit zwei parallele
// Läufe die Eindeutigkeit des natürlichen Schlüssels nicht verletzen können.
type Store struct {
	db *gorm.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New erstellt einen Store über einer bestehenden GORM-Verbindung.
func New(db *gorm.DB) *Store {
	return &Store{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}
}

// DB gibt die rohe GORM-Verbindung zurück (für Migrationen im Entry-Point).
func (s *Store) DB() *gorm.DB {
	return s.db
}

// keyLock liefert den Mutex für eine source_id.
func (s *Store) keyLock(sourceID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sourceID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sourceID] = l
	}
	return l
}

// UpsertTrial fügt einen Trial ein oder überschreibt alle Nicht-Schlüssel-Felder
// des bestehenden Datensatzes (last-write-wins, nicht mitgelieferte Felder
// werden NULL). Atomar pro source_id; Leser sehen nie einen halb
// geschriebenen Datensatz.
func (s *Store) UpsertTrial(t *models.Trial) (UpsertOutcome, error) {
	lock := s.keyLock(t.SourceID)
	lock.Lock()
	defer lock.Unlock()

	outcome := UpsertInserted
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Trial
		err := tx.Where("source_id = ?", t.SourceID).First(&existing).Error
		switch {
		case err == nil:
			outcome = UpsertUpdated
			existing.Title = t.Title
			existing.Condition = t.Condition
			existing.Sponsor = t.Sponsor
			existing.SponsorType = t.SponsorType
			existing.StartDate = t.StartDate
			existing.Status = t.Status
			// Save schreibt alle Felder, auch die auf NULL degradierten.
			return tx.Save(&existing).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(t).Error
		default:
			return err
		}
	})
	return outcome, err
}

// TrialBySourceID liest einen einzelnen Trial über den natürlichen Schlüssel.
func (s *Store) TrialBySourceID(sourceID string) (*models.Trial, error) {
	var t models.Trial
	if err := s.db.Where("source_id = ?", sourceID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// CountTrials zählt alle gespeicherten Trials.
func (s *Store) CountTrials() (int64, error) {
	var count int64
	err := s.db.Model(&models.Trial{}).Count(&count).Error
	return count, err
}

// SaveRun persistiert ein Laufprotokoll.
func (s *Store) SaveRun(run *models.IngestionRun) error {
	return s.db.Create(run).Error
}

// RecentRuns liefert die jüngsten Laufprotokolle, neueste zuerst.
func (s *Store) RecentRuns(limit int) ([]models.IngestionRun, error) {
	var runs []models.IngestionRun
	q := s.db.Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
