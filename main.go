package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"learnquestAPI/handlers"
	"learnquestAPI/internal/events"
	"learnquestAPI/internal/notification"
	"learnquestAPI/internal/storage"
	"learnquestAPI/internal/workers"
	"learnquestAPI/middleware"
	"learnquestAPI/services"

	_ "net/http/pprof"
)

var (
	dbPool              *pgxpool.Pool
	bus                 *events.Bus
	challengeService    *services.DailyChallengeService
	conditionEvaluator  *services.ConditionEvaluator
	pointsService       *services.PointsService
	achievementService  *services.AchievementService
	notificationService *services.NotificationService
	rotationWorker      *workers.RotationWorker
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(clerkSecretKey)
	log.Println("Clerk initialized successfully")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	log.Println("Successfully connected to database")

	store := storage.NewPostgres(dbPool)
	bus = events.NewBus()

	challengeService = services.NewDailyChallengeService(store, store, store, bus)
	conditionEvaluator = services.NewConditionEvaluator(store, store)
	pointsService = services.NewPointsService(store)
	achievementService = services.NewAchievementService(store, store, store)
	notificationService = services.NewNotificationService(store)

	bus.Subscribe(pointsService.HandleChallengeCompleted)
	bus.Subscribe(achievementService.HandleChallengeCompleted)
	bus.Subscribe(notificationService.HandleChallengeCompleted)

	fcmService, err := notification.NewFCMService("./serviceAccountKey.json")
	if err != nil {
		log.Printf("Warning: Could not initialize FCM: %v", err)
	} else {
		notificationService.SetPushProvider(fcmService)
		log.Println("FCM Push Provider initialized successfully")
	}

	rotationWorker = workers.NewRotationWorker(challengeService, time.Hour)

	middleware.InitPrometheus()
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	challengeHandler := handlers.NewChallengeHandler(challengeService, conditionEvaluator)
	adminHandler := handlers.NewAdminHandler(challengeService)

	r := mux.NewRouter()

	go middleware.CleanupVisitors()
	rotationWorker.Start()

	r.Use(middleware.RateLimitMiddleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))
	r.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "learnquest-api"}`))
	}).Methods("GET")

	// -------------------------------------------------------------------------
	// INTERNAL LIFECYCLE ENDPOINTS (CRON SECRET)
	// -------------------------------------------------------------------------
	internal := r.PathPrefix("/internal/challenges").Subrouter()
	internal.Use(middleware.CronSecretMiddleware)

	internal.HandleFunc("/generate", adminHandler.GenerateChallenges).Methods("POST")
	internal.HandleFunc("/auto-assign", adminHandler.AutoAssignAllUsers).Methods("POST")
	internal.HandleFunc("/reset-expired", adminHandler.ResetExpiredChallenges).Methods("POST")

	// -------------------------------------------------------------------------
	// API V1 (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	api := r.PathPrefix("/api/v1").Subrouter()
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/challenges/daily", challengeHandler.GetDailyChallenges).Methods("GET")
	protected.HandleFunc("/challenges/me", challengeHandler.GetMyChallenges).Methods("GET")
	protected.HandleFunc("/challenges/progress", challengeHandler.BatchUpdateProgress).Methods("PUT")
	protected.HandleFunc("/challenges/completion-rate", challengeHandler.GetCompletionRate).Methods("GET")
	protected.HandleFunc("/challenges/leaderboard", challengeHandler.GetLeaderboard).Methods("GET")
	protected.HandleFunc("/challenges/{challengeID}/progress", challengeHandler.UpdateProgress).Methods("PUT")
	protected.HandleFunc("/challenges/{challengeID}/claim", challengeHandler.ClaimReward).Methods("POST")
	protected.HandleFunc("/challenges/{challengeID}/condition", challengeHandler.CheckCondition).Methods("GET")

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Cron-Secret", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	rotationWorker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
