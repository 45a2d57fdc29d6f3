package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/junctree/internal/api/handlers"
	mw "github.com/Harshitk-cp/junctree/internal/api/middleware"
	"github.com/Harshitk-cp/junctree/internal/buildconfig"
	"github.com/Harshitk-cp/junctree/internal/config"
	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/Harshitk-cp/junctree/internal/junction"
	"github.com/Harshitk-cp/junctree/internal/metrics"
	"github.com/Harshitk-cp/junctree/internal/service"
	"github.com/Harshitk-cp/junctree/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config collects the settings NewApp needs; ConfigFromEnv fills it from
// the environment.
type Config struct {
	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int
	IdleTimeout    time.Duration
	Engine         service.Options
}

func ConfigFromEnv() (Config, error) {
	h, err := junction.ParseHeuristic(config.EliminationHeuristic())
	if err != nil {
		return Config{}, err
	}
	engine := service.DefaultOptions()
	engine.Heuristic = h
	engine.MaxCliqueStates = config.MaxCliqueStates()
	if config.RequireSingleTree() {
		engine.Policy = junction.SingleTree
	}
	return Config{
		APIKey:         config.APIKey(),
		RateLimitRPS:   config.RateLimitRPS(),
		RateLimitBurst: config.RateLimitBurst(),
		IdleTimeout:    config.NetworkIdleTimeout(),
		Engine:         engine,
	}, nil
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router       *chi.Mux
	Networks     *service.NetworkService
	Evictor      *service.EvictorService
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(networkStore domain.NetworkStore, reg *prometheus.Registry, cfg Config, logger *zap.Logger) *App {
	mr := metrics.Registry{R: reg}
	engine := cfg.Engine
	engine.Logger = logger
	engine.Metrics = metrics.NewInference(mr)

	networkSvc := service.NewNetworkService(networkStore, engine, logger)
	evictorSvc := service.NewEvictorService(networkSvc, logger)
	if cfg.IdleTimeout > 0 {
		evictorSvc.SetIdleTimeout(cfg.IdleTimeout)
	}

	networkHandler := handlers.NewNetworkHandler(networkSvc)
	queryHandler := handlers.NewQueryHandler(networkSvc)

	r := chi.NewRouter()
	app := &App{
		Router:    r,
		Networks:  networkSvc,
		Evictor:   evictorSvc,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount, metrics.NewHTTP(mr))

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	// Unauthenticated
	r.Get("/health", healthHandler(networkSvc))
	r.Get("/stats", app.statsHandler())
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(cfg.APIKey))

		r.Route("/networks", func(r chi.Router) {
			r.Post("/", networkHandler.Create)
			r.Get("/", networkHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", networkHandler.GetByID)
				r.Delete("/", networkHandler.Delete)
				r.Get("/dot", networkHandler.Dot)
				r.Post("/score", networkHandler.Score)
				r.Post("/ask", queryHandler.Ask)
				r.Get("/marginals", queryHandler.Marginals)
				r.Get("/evidence", queryHandler.GetEvidence)
				r.Put("/evidence", queryHandler.PutEvidence)
				r.Delete("/evidence", queryHandler.DeleteEvidence)
			})
		})
	})

	return app
}

func healthHandler(networks *service.NetworkService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := networks.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": buildconfig.Version(),
			"commit":  buildconfig.Commit(),
		})
	}
}

func (app *App) statsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds":  uptime.Seconds(),
			"uptime_human":    uptime.Round(time.Second).String(),
			"request_count":   app.requestCount.Load(),
			"error_count":     app.errorCount.Load(),
			"loaded_networks": app.Networks.Loaded(),
			"goroutines":      runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb": float64(memStats.Alloc) / 1024 / 1024,
				"sys_mb":   float64(memStats.Sys) / 1024 / 1024,
				"num_gc":   memStats.NumGC,
			},
			"build": buildconfig.VersionInfo(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores satisfy the interface at compile time.
var (
	_ domain.NetworkStore = (*store.NetworkStore)(nil)
	_ domain.NetworkStore = (*store.SQLiteNetworkStore)(nil)
)
