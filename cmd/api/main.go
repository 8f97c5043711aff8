package main

import (
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/metroware/equip-ledger/internal/config"
	"github.com/metroware/equip-ledger/internal/db"
	"github.com/metroware/equip-ledger/internal/handlers"
	"github.com/metroware/equip-ledger/internal/middleware"
	"github.com/metroware/equip-ledger/internal/oplog"
	"github.com/metroware/equip-ledger/internal/repo"
	"github.com/metroware/equip-ledger/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {

	// Load configuration
	cfg := config.Load()

	setupLogger(cfg.LogFormat)

	if cfg.Env == "prod" && cfg.JWTSecret == "supersecretkey" {
		log.Fatal("JWT_SECRET must be set in prod")
	}

	// Connect to database FIRST
	database, err := db.Connect(
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBUser,
		cfg.DBPass,
	)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)

	slog.Info("connected to database", "host", cfg.DBHost, "name", cfg.DBName)

	// Apply migrations
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err := db.Run(dsn); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Retention cleanup in the background
	logs := oplog.NewService(database)
	go func() {
		if err := scheduler.Run(logs, cfg.CleanupCron, cfg.LogRetentionDays); err != nil {
			slog.Error("scheduler failed to start", "err", err)
		}
	}()

	r := newRouter(database, cfg)

	// Start server LAST
	addr := ":" + cfg.Port
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		slog.Info("starting server with TLS", "addr", addr)
		err = http.ListenAndServeTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile, r)
	} else {
		slog.Info("starting server", "addr", addr)
		err = http.ListenAndServe(addr, r)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func setupLogger(format string) {
	if format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
		return
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

// newRouter builds the full API router. Split from main so tests can mount it
// on an httptest server with a mock DB.
func newRouter(database *sql.DB, cfg config.Config) chi.Router {
	logs := oplog.NewService(database)

	authH := &handlers.AuthHandler{
		UserRepo:       repo.NewUserRepo(database),
		Secret:         []byte(cfg.JWTSecret),
		JWTExpireHours: cfg.JWTExpireHours,
	}
	equipmentH := &handlers.EquipmentHandler{Repo: repo.NewEquipmentRepo(database), Logs: logs}
	calibrationH := &handlers.CalibrationHandler{
		Equipment: repo.NewEquipmentRepo(database),
		History:   repo.NewCalibrationRepo(database),
		Logs:      logs,
	}
	departmentH := &handlers.DepartmentHandler{Repo: repo.NewDepartmentRepo(database), Logs: logs}
	categoryH := &handlers.CategoryHandler{Repo: repo.NewCategoryRepo(database), Logs: logs}
	oplogH := &handlers.OpLogHandler{Logs: logs}
	dashboardH := &handlers.DashboardHandler{Equipment: repo.NewEquipmentRepo(database), Logs: logs}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Prometheus)
	r.Use(middleware.SecurityHeaders(cfg.Env == "prod"))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.MaxBytes(1 << 20))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Ping(); err != nil {
			http.Error(w, "db unreachable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Auth endpoints are rate limited per client IP.
	authLimiter := middleware.AuthRateLimiter()
	r.Group(func(r chi.Router) {
		r.Use(authLimiter.Middleware)
		r.Post("/v1/auth/register", authH.Register)
		r.Post("/v1/auth/login", authH.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTMiddleware([]byte(cfg.JWTSecret)))

		r.Route("/v1/equipment", func(r chi.Router) {
			r.Post("/", equipmentH.CreateEquipment)
			r.Get("/", equipmentH.ListEquipment)
			r.Post("/batch-status", equipmentH.BatchUpdateStatus)
			r.Get("/{id}", equipmentH.GetEquipment)
			r.Put("/{id}", equipmentH.UpdateEquipment)
			r.Delete("/{id}", equipmentH.DeleteEquipment)
			r.Post("/{id}/calibration", calibrationH.RecordCalibration)
			r.Get("/{id}/calibration", calibrationH.ListCalibrations)
		})

		r.Route("/v1/logs", func(r chi.Router) {
			r.Get("/", oplogH.ListLogs)
			r.Get("/statistics", oplogH.Statistics)
			r.Delete("/cleanup", oplogH.Cleanup)
			r.Get("/{id}", oplogH.GetLog)
			r.Get("/{id}/history", oplogH.GetHistory)
			r.Post("/{id}/rollback", oplogH.Rollback)
		})

		r.Route("/v1/departments", func(r chi.Router) {
			r.Post("/", departmentH.CreateDepartment)
			r.Get("/", departmentH.ListDepartments)
			r.Put("/{id}", departmentH.UpdateDepartment)
			r.Delete("/{id}", departmentH.DeleteDepartment)
		})

		r.Route("/v1/categories", func(r chi.Router) {
			r.Post("/", categoryH.CreateCategory)
			r.Get("/", categoryH.ListCategories)
			r.Put("/{id}", categoryH.UpdateCategory)
			r.Delete("/{id}", categoryH.DeleteCategory)
		})

		r.Get("/v1/dashboard", dashboardH.Summary)
	})

	return r
}
