package main

import (
	"context"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/Jseb0/Clinical-Data-Explorer/config"
	"github.com/Jseb0/Clinical-Data-Explorer/models"
	"github.com/Jseb0/Clinical-Data-Explorer/pipeline"
	"github.com/Jseb0/Clinical-Data-Explorer/storage"
	"github.com/Jseb0/Clinical-Data-Explorer/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	trialsIngestedCounter prometheus.Counter
	trialsUpdatedCounter  prometheus.Counter
	rowsRejectedCounter   prometheus.Counter
	runsFailedCounter     prometheus.Counter
)

func init() {
	trialsIngestedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trials_ingested_total",
		Help: "Total number of new trial records inserted into the store.",
	})
	trialsUpdatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trials_updated_total",
		Help: "Total number of trial records overwritten by later ingestion runs.",
	})
	rowsRejectedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rows_rejected_total",
		Help: "Total number of CSV rows rejected during ingestion.",
	})
	runsFailedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingestion_runs_failed_total",
		Help: "Total number of ingestion runs that failed at fetch or storage level.",
	})
	prometheus.MustRegister(trialsIngestedCounter, trialsUpdatedCounter, rowsRejectedCounter, runsFailedCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to trials database", zap.Error(err))
	}
	logging.Info("Successfully connected to trials database.")

	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(&models.Trial{}, &models.IngestionRun{}); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	st := store.New(db)

	// Snapshot-Archiv nur, wenn S3 vollständig konfiguriert ist.
	var archiver pipeline.SnapshotArchiver
	if cfg.SnapshotsEnabled() {
		snapshots, err := storage.NewSnapshotStore(cfg)
		if err != nil {
			logging.Fatal("S3 snapshot client creation failed", zap.Error(err))
		}
		archiver = snapshots
		logging.Info("Raw export snapshots enabled", zap.String("bucket", cfg.SnapshotS3Bucket))
	}

	engine := pipeline.NewEngine(cfg.SourceURL, cfg.FetchTimeout(), st, archiver, logging)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupHealthRoute(router)
	setupTrialRoutes(router, st, logging, cfg)
	setupAnalyticsRoutes(router, st, logging)
	setupIngestRoutes(router, engine, st, logging, cfg)

	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled ingestion...")
		runIngestion(engine, logging)
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// runIngestion führt einen Lauf aus und aktualisiert die Prometheus-Zähler.
func runIngestion(engine *pipeline.Engine, log *zap.Logger) {
	result, err := engine.Run(context.Background())
	if err != nil {
		runsFailedCounter.Inc()
		log.Error("Ingestion run failed", zap.Error(err))
		return
	}
	trialsIngestedCounter.Add(float64(result.Inserted))
	trialsUpdatedCounter.Add(float64(result.Updated))
	rowsRejectedCounter.Add(float64(result.BadRows))
}

func setupHealthRoute(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func setupTrialRoutes(router *gin.Engine, st *store.Store, log *zap.Logger, cfg *config.Config) {
	router.GET("/trials", func(c *gin.Context) {
		page, ok := intQuery(c, "page", 1, 1, 0)
		if !ok {
			return
		}
		limit, ok := intQuery(c, "limit", cfg.DefaultPageSize, 1, cfg.MaxPageSize)
		if !ok {
			return
		}

		sortBy := c.DefaultQuery("sort_by", "start_date")
		if !store.SortableField(sortBy) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sort_by must be one of start_date, title, sponsor, status"})
			return
		}
		sortDir := c.DefaultQuery("sort_dir", "desc")
		if sortDir != "asc" && sortDir != "desc" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sort_dir must be asc or desc"})
			return
		}

		startFrom, ok := dateQuery(c, "start_from")
		if !ok {
			return
		}
		startTo, ok := dateQuery(c, "start_to")
		if !ok {
			return
		}

		filter := store.TrialFilter{
			Q:         c.Query("q"),
			Condition: c.Query("condition"),
			Sponsor:   c.Query("sponsor"),
			Status:    c.Query("status"),
			StartFrom: startFrom,
			StartTo:   startTo,
			SortBy:    sortBy,
			SortDir:   sortDir,
			Page:      page,
			Limit:     limit,
		}

		items, total, err := st.Search(filter)
		if err != nil {
			log.Error("Trial search failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if items == nil {
			items = []models.Trial{}
		}

		pages := 1
		if total > 0 {
			pages = int(math.Ceil(float64(total) / float64(limit)))
		}

		c.JSON(http.StatusOK, models.TrialsPage{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: pages,
			Items: items,
		})
	})
}

func setupAnalyticsRoutes(router *gin.Engine, st *store.Store, log *zap.Logger) {
	rg := router.Group("/analytics")

	facetHandler := func(field string) gin.HandlerFunc {
		return func(c *gin.Context) {
			limit, ok := intQuery(c, "limit", 20, 1, 100)
			if !ok {
				return
			}
			counts, err := st.CountByField(field, limit)
			if err != nil {
				log.Error("Facet aggregation failed", zap.String("field", field), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
				return
			}
			c.JSON(http.StatusOK, counts)
		}
	}

	rg.GET("/top-conditions", facetHandler("condition"))
	rg.GET("/sponsor-breakdown", facetHandler("sponsor"))

	// Volle Aufschlüsselung ohne Limit; sponsor_type ist niedrig-kardinal.
	rg.GET("/sponsor-types", func(c *gin.Context) {
		counts, err := st.CountByField("sponsor_type", 0)
		if err != nil {
			log.Error("Sponsor type aggregation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		out := make([]models.SponsorTypeCount, 0, len(counts))
		for _, fc := range counts {
			out = append(out, models.SponsorTypeCount{SponsorType: fc.Name, Count: fc.Count})
		}
		c.JSON(http.StatusOK, out)
	})

	rg.GET("/trials-over-time", func(c *gin.Context) {
		interval := c.DefaultQuery("interval", "month")
		if interval != "month" && interval != "year" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "interval must be month or year"})
			return
		}
		counts, err := st.CountByPeriod(interval)
		if err != nil {
			log.Error("Time bucket aggregation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, counts)
	})
}

func setupIngestRoutes(router *gin.Engine, engine *pipeline.Engine, st *store.Store, log *zap.Logger, cfg *config.Config) {
	rg := router.Group("/ingest")
	rg.Use(apiKeyAuthMiddleware(cfg))

	rg.POST("/run", func(c *gin.Context) {
		go runIngestion(engine, log)
		c.JSON(http.StatusAccepted, gin.H{"message": "Ingestion run triggered."})
	})

	rg.GET("/runs", func(c *gin.Context) {
		limit, ok := intQuery(c, "limit", 20, 1, 100)
		if !ok {
			return
		}
		runs, err := st.RecentRuns(limit)
		if err != nil {
			log.Error("Failed to load ingestion runs", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if runs == nil {
			runs = []models.IngestionRun{}
		}
		c.JSON(http.StatusOK, runs)
	})
}

// intQuery liest einen Integer-Query-Parameter mit Default und Grenzen.
// max <= 0 bedeutet: keine Obergrenze. Bei Verstoß antwortet der Handler
// selbst mit 400; der zweite Rückgabewert ist dann false.
func intQuery(c *gin.Context, name string, def, min, max int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || (max > 0 && v > max) {
		if max > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be an integer between " + strconv.Itoa(min) + " and " + strconv.Itoa(max)})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be an integer >= " + strconv.Itoa(min)})
		}
		return 0, false
	}
	return v, true
}

// dateQuery liest einen optionalen ISO-Datums-Parameter (YYYY-MM-DD).
func dateQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be an ISO date (YYYY-MM-DD)"})
		return nil, false
	}
	return &t, true
}
