package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Jseb0/Clinical-Data-Explorer/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	// SQLite in-memory: eine Verbindung, sonst sieht jede Pool-Verbindung
	// ihre eigene leere Datenbank.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Trial{}, &models.IngestionRun{}))
	return New(db)
}

func strPtr(s string) *string { return &s }

func datePtr(value string) *time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return &t
}

func seedTrial(t *testing.T, st *Store, trial models.Trial) {
	t.Helper()
	_, err := st.UpsertTrial(&trial)
	require.NoError(t, err)
}

func TestUpsertInsertThenUpdate(t *testing.T) {
	st := newTestStore(t)

	outcome, err := st.UpsertTrial(&models.Trial{
		SourceID:  "NCT1",
		Title:     "Trial A",
		Sponsor:   strPtr("Acme"),
		StartDate: datePtr("2021-03-01"),
	})
	require.NoError(t, err)
	assert.Equal(t, UpsertInserted, outcome)

	// Zweiter Upsert überschreibt alle Nicht-Schlüssel-Felder, auch mit NULL.
	outcome, err = st.UpsertTrial(&models.Trial{
		SourceID: "NCT1",
		Title:    "Trial A v2",
	})
	require.NoError(t, err)
	assert.Equal(t, UpsertUpdated, outcome)

	count, err := st.CountTrials()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	trial, err := st.TrialBySourceID("NCT1")
	require.NoError(t, err)
	assert.Equal(t, "Trial A v2", trial.Title)
	assert.Nil(t, trial.Sponsor)
	assert.Nil(t, trial.StartDate)
}

func TestUpsertConcurrentSameKey(t *testing.T) {
	st := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := st.UpsertTrial(&models.Trial{
				SourceID: "NCT1",
				Title:    fmt.Sprintf("Trial %d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Eindeutigkeit des natürlichen Schlüssels bleibt unter parallelen
	// Upserts erhalten.
	count, err := st.CountTrials()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func seedSearchFixture(t *testing.T, st *Store) {
	t.Helper()
	seedTrial(t, st, models.Trial{SourceID: "NCT1", Title: "Asthma in Children", Condition: strPtr("Asthma"), Sponsor: strPtr("Acme Pharma"), Status: strPtr("Recruiting"), StartDate: datePtr("2020-01-15")})
	seedTrial(t, st, models.Trial{SourceID: "NCT2", Title: "Advanced Diabetes Care", Condition: strPtr("Diabetes"), Sponsor: strPtr("Beta Biotech"), Status: strPtr("Completed"), StartDate: datePtr("2021-06-01")})
	seedTrial(t, st, models.Trial{SourceID: "NCT3", Title: "Diabetes Prevention", Condition: strPtr("Diabetes"), Sponsor: strPtr("Acme Pharma"), Status: strPtr("Recruiting")})
	seedTrial(t, st, models.Trial{SourceID: "NCT4", Title: "Cardiac Outcomes", Condition: strPtr("Heart Disease"), Sponsor: strPtr("Gamma Health"), Status: strPtr("Terminated"), StartDate: datePtr("2019-11-30")})
}

func TestSearchFilters(t *testing.T) {
	st := newTestStore(t)
	seedSearchFixture(t, st)

	base := TrialFilter{SortBy: "start_date", SortDir: "desc", Page: 1, Limit: 20}

	t.Run("title substring is case-insensitive", func(t *testing.T) {
		f := base
		f.Q = "diabetes"
		items, total, err := st.Search(f)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, items, 2)
	})

	t.Run("filters combine with AND", func(t *testing.T) {
		f := base
		f.Condition = "diabetes"
		f.Sponsor = "acme"
		items, total, err := st.Search(f)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, items, 1)
		assert.Equal(t, "NCT3", items[0].SourceID)
	})

	t.Run("date range excludes records without start_date", func(t *testing.T) {
		f := base
		f.StartFrom = datePtr("2019-01-01")
		f.StartTo = datePtr("2021-12-31")
		_, total, err := st.Search(f)
		require.NoError(t, err)
		// NCT3 hat kein Startdatum und matcht den Bereich nie.
		assert.Equal(t, int64(3), total)
	})

	t.Run("inclusive bounds", func(t *testing.T) {
		f := base
		f.StartFrom = datePtr("2020-01-15")
		f.StartTo = datePtr("2020-01-15")
		items, total, err := st.Search(f)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, items, 1)
		assert.Equal(t, "NCT1", items[0].SourceID)
	})
}

func TestSearchNullsLastBothDirections(t *testing.T) {
	st := newTestStore(t)
	seedSearchFixture(t, st)

	for _, dir := range []string{"asc", "desc"} {
		t.Run(dir, func(t *testing.T) {
			items, _, err := st.Search(TrialFilter{SortBy: "start_date", SortDir: dir, Page: 1, Limit: 20})
			require.NoError(t, err)
			require.Len(t, items, 4)
			// NCT3 ohne Startdatum steht in beiden Richtungen am Ende.
			assert.Equal(t, "NCT3", items[3].SourceID)
			assert.Nil(t, items[3].StartDate)
		})
	}

	items, _, err := st.Search(TrialFilter{SortBy: "start_date", SortDir: "asc", Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, "NCT4", items[0].SourceID)

	items, _, err = st.Search(TrialFilter{SortBy: "start_date", SortDir: "desc", Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, "NCT2", items[0].SourceID)
}

func TestSearchPagination(t *testing.T) {
	st := newTestStore(t)
	for i := 1; i <= 12; i++ {
		seedTrial(t, st, models.Trial{SourceID: fmt.Sprintf("NCT%02d", i), Title: fmt.Sprintf("Trial %02d", i)})
	}

	items, total, err := st.Search(TrialFilter{SortBy: "title", SortDir: "asc", Page: 1, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
	require.Len(t, items, 5)
	assert.Equal(t, "Trial 01", items[0].Title)

	items, total, err = st.Search(TrialFilter{SortBy: "title", SortDir: "asc", Page: 3, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
	assert.Len(t, items, 2)

	// Seiten hinter der letzten: leer, total unverändert.
	items, total, err = st.Search(TrialFilter{SortBy: "title", SortDir: "asc", Page: 9, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
	assert.Len(t, items, 0)
}

func TestCountByFieldExcludesEmptyAndBreaksTies(t *testing.T) {
	st := newTestStore(t)
	seedTrial(t, st, models.Trial{SourceID: "NCT1", Title: "T1", Condition: strPtr("Asthma")})
	seedTrial(t, st, models.Trial{SourceID: "NCT2", Title: "T2", Condition: strPtr("Diabetes")})
	seedTrial(t, st, models.Trial{SourceID: "NCT3", Title: "T3", Condition: strPtr("Diabetes")})
	seedTrial(t, st, models.Trial{SourceID: "NCT4", Title: "T4", Condition: strPtr("Cancer")})
	seedTrial(t, st, models.Trial{SourceID: "NCT5", Title: "T5"})
	seedTrial(t, st, models.Trial{SourceID: "NCT6", Title: "T6", Condition: strPtr("")})

	counts, err := st.CountByField("condition", 10)
	require.NoError(t, err)
	require.Len(t, counts, 3)
	assert.Equal(t, models.FacetCount{Name: "Diabetes", Count: 2}, counts[0])
	// Gleichstand: Label aufsteigend.
	assert.Equal(t, models.FacetCount{Name: "Asthma", Count: 1}, counts[1])
	assert.Equal(t, models.FacetCount{Name: "Cancer", Count: 1}, counts[2])

	// Summe der Gruppen == Anzahl Datensätze mit nicht-leerem Wert.
	var sum int64
	for _, fc := range counts {
		sum += fc.Count
	}
	assert.Equal(t, int64(4), sum)
}

func TestCountByFieldLimit(t *testing.T) {
	st := newTestStore(t)
	seedTrial(t, st, models.Trial{SourceID: "NCT1", Title: "T1", Sponsor: strPtr("Acme")})
	seedTrial(t, st, models.Trial{SourceID: "NCT2", Title: "T2", Sponsor: strPtr("Acme")})
	seedTrial(t, st, models.Trial{SourceID: "NCT3", Title: "T3", Sponsor: strPtr("Beta")})
	seedTrial(t, st, models.Trial{SourceID: "NCT4", Title: "T4", Sponsor: strPtr("Gamma")})

	counts, err := st.CountByField("sponsor", 2)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, "Acme", counts[0].Name)

	// limit <= 0: volle Aufschlüsselung.
	counts, err = st.CountByField("sponsor", 0)
	require.NoError(t, err)
	assert.Len(t, counts, 3)
}

func TestCountByFieldUnknownField(t *testing.T) {
	st := newTestStore(t)
	_, err := st.CountByField("title", 5)
	assert.Error(t, err)
}

func TestCountByPeriod(t *testing.T) {
	st := newTestStore(t)
	seedTrial(t, st, models.Trial{SourceID: "NCT1", Title: "T1", StartDate: datePtr("2020-01-15")})
	seedTrial(t, st, models.Trial{SourceID: "NCT2", Title: "T2", StartDate: datePtr("2020-01-20")})
	seedTrial(t, st, models.Trial{SourceID: "NCT3", Title: "T3", StartDate: datePtr("2020-03-01")})
	seedTrial(t, st, models.Trial{SourceID: "NCT4", Title: "T4", StartDate: datePtr("2021-07-04")})
	seedTrial(t, st, models.Trial{SourceID: "NCT5", Title: "T5"})

	months, err := st.CountByPeriod("month")
	require.NoError(t, err)
	require.Len(t, months, 3)
	assert.Equal(t, models.PeriodCount{Period: "2020-01", Count: 2}, months[0])
	assert.Equal(t, models.PeriodCount{Period: "2020-03", Count: 1}, months[1])
	assert.Equal(t, models.PeriodCount{Period: "2021-07", Count: 1}, months[2])

	years, err := st.CountByPeriod("year")
	require.NoError(t, err)
	require.Len(t, years, 2)
	assert.Equal(t, models.PeriodCount{Period: "2020", Count: 3}, years[0])
	assert.Equal(t, models.PeriodCount{Period: "2021", Count: 1}, years[1])
}

func TestRecentRunsOrder(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.SaveRun(&models.IngestionRun{SourceURL: "u", Status: models.RunStatusSucceeded, Inserted: 1, TotalParsed: 1}))
	require.NoError(t, st.SaveRun(&models.IngestionRun{SourceURL: "u", Status: models.RunStatusFailed, Error: "boom"}))

	runs, err := st.RecentRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}
