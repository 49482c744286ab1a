package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gorilla/mux"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlog "gorm.io/gorm/logger"

	"github.com/bitechdev/VirtualSpec/pkg/common"
	"github.com/bitechdev/VirtualSpec/pkg/common/adapters/database"
	"github.com/bitechdev/VirtualSpec/pkg/config"
	"github.com/bitechdev/VirtualSpec/pkg/errortracking"
	"github.com/bitechdev/VirtualSpec/pkg/logger"
	"github.com/bitechdev/VirtualSpec/pkg/metrics"
	"github.com/bitechdev/VirtualSpec/pkg/middleware"
	"github.com/bitechdev/VirtualSpec/pkg/modelregistry"
	"github.com/bitechdev/VirtualSpec/pkg/tracing"
	"github.com/bitechdev/VirtualSpec/pkg/virtualspec"
)

func main() {
	cfgMgr := config.NewManager()
	if err := cfgMgr.Load(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg, err := cfgMgr.GetConfig()
	if err != nil {
		log.Fatalf("Failed to get configuration: %v", err)
	}

	logger.Init(cfg.Logger.Dev)
	if cfg.Logger.Path != "" {
		logger.UpdateLoggerPath(cfg.Logger.Path, cfg.Logger.Dev)
	}
	logger.Info("VirtualSpec example server starting")

	tracker, err := errortracking.NewProviderFromConfig(cfg.ErrorTracking)
	if err != nil {
		logger.Error("Failed to initialize error tracking: %v", err)
		os.Exit(1)
	}
	logger.InitErrorTracking(tracker)
	defer func() {
		if err := logger.CloseErrorTracking(); err != nil {
			logger.Warn("Failed to close error tracking: %v", err)
		}
	}()

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracer(tracing.Config{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: cfg.Tracing.ServiceVersion,
			Endpoint:       cfg.Tracing.Endpoint,
			Enabled:        true,
		})
		if err != nil {
			logger.Error("Failed to initialize tracing: %v", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Warn("Failed to shut down tracer: %v", err)
			}
		}()
	}

	var metricsProvider metrics.Provider = &metrics.NoOpProvider{}
	if cfg.Metrics.Enabled {
		metricsProvider = metrics.NewPrometheusProvider(&metrics.Config{
			Namespace: cfg.Metrics.Namespace,
		})
	}
	metrics.SetProvider(metricsProvider)

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("Failed to open database: %v", err)
		os.Exit(1)
	}
	if err := seedDatabase(db); err != nil {
		logger.Error("Failed to seed database: %v", err)
		os.Exit(1)
	}

	registry := modelregistry.NewModelRegistry()
	if err := registerModels(registry); err != nil {
		logger.Error("Failed to register models: %v", err)
		os.Exit(1)
	}
	modelregistry.AddRegistry(registry)

	adapter := database.NewGormAdapter(db)
	if cfg.Database.Debug {
		adapter.EnableQueryDebug()
	}

	r := mux.NewRouter()
	r.Use(middleware.PanicRecovery)
	if cfg.Middleware.RateLimitRPS > 0 {
		limiter := middleware.NewRateLimiter(cfg.Middleware.RateLimitRPS, cfg.Middleware.RateLimitBurst)
		r.Use(limiter.Middleware)
	}
	if cfg.Tracing.Enabled {
		r.Use(tracing.Middleware)
	}
	if cfg.Metrics.Enabled {
		if p, ok := metricsProvider.(*metrics.PrometheusProvider); ok {
			r.Use(p.Middleware)
			r.Handle(cfg.Metrics.Path, p.Handler())
		}
	}

	r.HandleFunc("/people", listPeopleHandler(adapter)).Methods("GET")
	r.HandleFunc("/movies", listMoviesHandler(adapter)).Methods("GET")

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed: %v", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	logLevel := gormlog.Warn
	if cfg.Logger.Dev {
		logLevel = gormlog.Info
	}
	gormCfg := &gorm.Config{
		Logger: gormlog.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormlog.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  logLevel,
				IgnoreRecordNotFoundError: true,
				ParameterizedQueries:      true,
				Colorful:                  cfg.Logger.Dev,
			},
		),
	}

	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.Database.DSN)
	default:
		dialector = sqlite.Open(cfg.Database.DSN)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Person{}, &Movie{}, &Nomination{}); err != nil {
		return nil, err
	}
	return db, nil
}

// seedDatabase loads a small demo dataset on an empty database.
func seedDatabase(db *gorm.DB) error {
	var count int64
	if err := db.Model(&Person{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	director := Person{Name: "Hayao Miyazaki", Biography: "Animator, filmmaker and co-founder of Studio Ghibli."}
	if err := db.Create(&director).Error; err != nil {
		return err
	}
	movie := Movie{
		Name:        "Spirited Away",
		Description: "A girl wanders into a world ruled by spirits.",
		Year:        2001,
		Directors:   []Person{director},
	}
	if err := db.Create(&movie).Error; err != nil {
		return err
	}
	nominations := []Nomination{
		{PersonID: director.ID, MovieID: movie.ID, Award: "Academy Award", Category: "Best Animated Feature", Year: 2003, IsWinner: true},
		{PersonID: director.ID, MovieID: movie.ID, Award: "Annie Award", Category: "Outstanding Direction", Year: 2002, IsWinner: false},
	}
	return db.Create(&nominations).Error
}

func listPeopleHandler(db common.Database) http.HandlerFunc {
	vm := newVirtualPerson()
	serializer := newPersonSerializer()
	optimizer := virtualspec.NewOptimizer(serializer, vm)

	return func(w http.ResponseWriter, r *http.Request) {
		rc := &virtualspec.RequestContext{}

		var people []Person
		q, lookups, err := optimizer.Optimize(r.Context(), db.NewSelect().Model(&Person{}), rc)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if err := q.Scan(r.Context(), &people); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		guarded, err := virtualspec.GuardSlice(&people, vm, lookups)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		rows, err := renderMany(guarded, serializer)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, rows)
	}
}

func listMoviesHandler(db common.Database) http.HandlerFunc {
	vm := newVirtualMovie()
	serializer := newMovieSerializer()
	optimizer := virtualspec.NewOptimizer(serializer, vm)

	return func(w http.ResponseWriter, r *http.Request) {
		rc := &virtualspec.RequestContext{}

		var movies []Movie
		q, lookups, err := optimizer.Optimize(r.Context(), db.NewSelect().Model(&Movie{}), rc)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if err := q.Scan(r.Context(), &movies); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		guarded, err := virtualspec.GuardSlice(&movies, vm, lookups)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		rows, err := renderMany(guarded, serializer)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, rows)
	}
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger.Error("Request failed: %v", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(map[string]string{"error": err.Error()}); encErr != nil {
		logger.Warn("Failed to write response: %v", encErr)
	}
}
