package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/mind-engage/coursework/internal/api/http"
	"github.com/mind-engage/coursework/internal/assessment"
	auth "github.com/mind-engage/coursework/internal/auth/middleware"
	"github.com/mind-engage/coursework/internal/config"
	"github.com/mind-engage/coursework/internal/db"
	"github.com/mind-engage/coursework/internal/enrollment"
	"github.com/mind-engage/coursework/internal/events"
	"github.com/mind-engage/coursework/internal/grading"
	"github.com/mind-engage/coursework/internal/progress"
	"github.com/mind-engage/coursework/internal/rbac"
	"github.com/mind-engage/coursework/internal/storage"
	"github.com/mind-engage/coursework/internal/store/sqlstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		log.Fatalf("db driver: %v", err)
	}
	dbh, err := db.Open(ctx, driver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()
	store := sqlstore.New(dbh, driver)

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	// --- Domain services ---
	strategy, err := progress.ByName(cfg.ProgressStrategy, cfg.ProgressLessonWeight, cfg.ProgressAssessmentWeight)
	if err != nil {
		log.Fatalf("progress strategy: %v", err)
	}
	eventLog := events.NewEventRepo(dbh, cfg.SiteID)

	enrollments := enrollment.NewService(store.Enrollments(), progress.NewCalculator(strategy),
		enrollment.WithPublisher(eventLog),
		enrollment.WithLogger(logger.With("svc", "enrollment")),
		enrollment.WithInvitationExpiry(cfg.EnforceInvitationExpiry),
	)
	assessments := assessment.NewService(store.Assessments(),
		grading.NewEngine(grading.WithTruthyTokens(cfg.TrueFalseTokens...)),
		assessment.WithPolicy(assessment.Policy{RequireActiveEnrollment: cfg.RequireActiveEnrollment}),
		assessment.WithBlobStore(bs),
		assessment.WithPublisher(eventLog),
		assessment.WithProgressHook(enrollments),
		assessment.WithLogger(logger.With("svc", "assessment")),
	)

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)
	handlers := &api.Handlers{
		Assessments: assessments,
		Enrollments: enrollments,
		Blobs:       bs,
		Checker:     rbac.NewChecker(nil),
		Log:         logger.With("svc", "http"),
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.Login{
		Auth:          authSvc,
		AdminUser:     cfg.AdminUser,
		AdminPassHash: cfg.AdminPassHash,
		DevLogins:     cfg.Mode == config.ModeOffline,
	}.Handler())

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		handlers.Mount(pr)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	log.Printf("listening on %s (mode=%s, db=%s, progress=%s)", cfg.HTTPAddr, cfg.Mode, driver, strategy.Name())
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
