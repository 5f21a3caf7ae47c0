package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	firebase "firebase.google.com/go/v4"
	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"challengeStreakAPI/handlers"
	"challengeStreakAPI/internal/config"
	"challengeStreakAPI/internal/docstore"
	"challengeStreakAPI/internal/firebaseapp"
	"challengeStreakAPI/internal/media"
	"challengeStreakAPI/internal/workers"
	"challengeStreakAPI/middleware"
	"challengeStreakAPI/services"

	_ "net/http/pprof"
)

var (
	cfg                *config.Config
	dbPool             *pgxpool.Pool
	firebaseApp        *firebase.App
	store              docstore.Store
	uploader           media.Uploader
	calendar           *services.Calendar
	challengeService   *services.ChallengeService
	membershipService  *services.MembershipService
	postService        *services.PostService
	reactionService    *services.ReactionService
	commentService     *services.CommentService
	leaderboardService *services.LeaderboardService
)

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	clerk.SetKey(cfg.ClerkSecretKey)
	log.Println("Clerk initialized successfully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		store = connectPostgres(ctx)
	case config.BackendFirestore:
		client, err := getFirebaseApp(ctx).Firestore(context.Background())
		if err != nil {
			log.Fatal("Failed to create Firestore client: ", err)
		}
		store = docstore.NewFirestoreStore(client)
		log.Println("Using Firestore document store")
	case config.BackendMemory:
		store = docstore.NewMemoryStore()
		log.Println("Using in-memory document store, data will not survive a restart")
	}

	switch cfg.MediaBackend {
	case config.MediaSpaces:
		uploader, err = media.NewSpacesUploader(ctx, cfg.SpacesKey, cfg.SpacesSecret, cfg.SpacesRegion, cfg.SpacesBucket)
		if err != nil {
			log.Fatal("Failed to initialize Spaces: ", err)
		}
		log.Printf("Uploading images to Spaces bucket %s", cfg.SpacesBucket)
	case config.MediaFirebase:
		storageClient, err := getFirebaseApp(ctx).Storage(context.Background())
		if err != nil {
			log.Fatal("Failed to create Firebase Storage client: ", err)
		}
		bucket, err := storageClient.Bucket(cfg.FirebaseStorageBucket)
		if err != nil {
			log.Fatal("Failed to open Firebase Storage bucket: ", err)
		}
		uploader = media.NewFirebaseUploader(bucket, cfg.FirebaseStorageBucket)
		log.Printf("Uploading images to Firebase Storage bucket %s", cfg.FirebaseStorageBucket)
	default:
		uploader = media.Disabled()
	}

	calendar = services.NewCalendar(nil, cfg.StreakTimezone)
	challengeService = services.NewChallengeService(store, cfg.ChallengeCacheSize)
	membershipService = services.NewMembershipService(store, calendar)
	postService = services.NewPostService(store, membershipService, calendar)
	reactionService = services.NewReactionService(store)
	commentService = services.NewCommentService(store)
	leaderboardService = services.NewLeaderboardService(store, membershipService)

	middleware.InitPrometheus()
	services.InitMetrics()
}

func connectPostgres(ctx context.Context) docstore.Store {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
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
	log.Println("Successfully connected to Postgres")

	pgStore := docstore.NewPostgresStore(dbPool)
	if err := pgStore.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to prepare documents table:", err)
	}
	return pgStore
}

func getFirebaseApp(ctx context.Context) *firebase.App {
	if firebaseApp != nil {
		return firebaseApp
	}
	app, err := firebaseapp.New(ctx, firebaseapp.Options{
		EncodedCredentials: cfg.FirebaseCredentialsJSON,
		CredentialsFile:    cfg.FirebaseCredentialsFile,
		ProjectID:          cfg.FirebaseProjectID,
		StorageBucket:      cfg.FirebaseStorageBucket,
	})
	if err != nil {
		log.Fatal("Failed to initialize Firebase: ", err)
	}
	firebaseApp = app
	return firebaseApp
}

func healthCheck(ctx context.Context) error {
	switch s := store.(type) {
	case *docstore.PostgresStore:
		return s.Ping(ctx)
	case *docstore.FirestoreStore:
		_, err := s.Query(ctx, docstore.Collection("challenges").Take(1))
		return err
	}
	return nil
}

func main() {
	defer func() {
		if dbPool != nil {
			log.Println("Closing database connection pool...")
			dbPool.Close()
		}
		if fs, ok := store.(*docstore.FirestoreStore); ok {
			log.Println("Closing Firestore client...")
			fs.Close()
		}
	}()

	bgCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	challengeHandler := handlers.NewChallengeHandler(challengeService, membershipService, leaderboardService)
	postHandler := handlers.NewPostHandler(postService, membershipService, uploader)
	engagementHandler := handlers.NewEngagementHandler(postService, reactionService, commentService, cfg.RecentCommentsLimit)

	r := mux.NewRouter()

	standardRouter := r.PathPrefix("/").Subrouter()

	rateLimiter := middleware.NewRateLimiter(5, 30)
	go rateLimiter.CleanupVisitors(bgCtx)

	workers.StartStreakSweeper(bgCtx, membershipService, cfg.StreakSweepInterval)

	standardRouter.Use(rateLimiter.Middleware)
	standardRouter.Use(middleware.MonitorMiddleware)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))
	standardRouter.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	standardRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := healthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "document store unreachable"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "challenge-streak-api"}`))
	}).Methods("GET")

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := standardRouter.PathPrefix("/api/v1").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/challenges", challengeHandler.ListChallenges).Methods("GET")
	protected.HandleFunc("/challenges", challengeHandler.CreateChallenge).Methods("POST")
	protected.HandleFunc("/challenges/{id}", challengeHandler.GetChallenge).Methods("GET")
	protected.HandleFunc("/challenges/{id}/join", challengeHandler.JoinChallenge).Methods("POST")
	protected.HandleFunc("/challenges/{id}/membership", challengeHandler.GetMembership).Methods("GET")
	protected.HandleFunc("/challenges/{id}/leaderboard", challengeHandler.GetLeaderboard).Methods("GET")

	protected.HandleFunc("/challenges/{id}/posts", postHandler.ListPosts).Methods("GET")
	protected.HandleFunc("/challenges/{id}/posts", postHandler.SubmitPost).Methods("POST")
	protected.HandleFunc("/challenges/{id}/posts/today", postHandler.GetTodayPost).Methods("GET")
	protected.HandleFunc("/posts/{id}/streak/retry", postHandler.RetryStreakUpdate).Methods("POST")

	protected.HandleFunc("/challenges/{id}/feed", engagementHandler.GetFeed).Methods("GET")
	protected.HandleFunc("/challenges/{id}/feed/ws", engagementHandler.FeedSocket)
	protected.HandleFunc("/posts/{id}/reactions", engagementHandler.ToggleReaction).Methods("POST")
	protected.HandleFunc("/posts/{id}/comments", engagementHandler.ListComments).Methods("GET")
	protected.HandleFunc("/posts/{id}/comments", engagementHandler.AddComment).Methods("POST")

	protected.HandleFunc("/user/memberships", challengeHandler.GetUserMemberships).Methods("GET")

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := ":" + cfg.Port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
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
	stopWorkers()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
