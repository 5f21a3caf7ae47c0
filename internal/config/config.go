package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"

	MediaSpaces   = "spaces"
	MediaFirebase = "firebase"
	MediaNone     = "none"
)

type Config struct {
	Port         string
	StoreBackend string
	DatabaseURL  string

	FirebaseCredentialsJSON string
	FirebaseCredentialsFile string
	FirebaseProjectID       string
	FirebaseStorageBucket   string

	ClerkSecretKey string

	MediaBackend string
	SpacesKey    string
	SpacesSecret string
	SpacesRegion string
	SpacesBucket string

	StreakTimezone      *time.Location
	RecentCommentsLimit int
	ChallengeCacheSize  int
	StreakSweepInterval time.Duration
}

// Load reads .env if present and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	return FromEnv(os.Getenv)
}

func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		Port:                    get("PORT", "3333"),
		StoreBackend:            get("STORE_BACKEND", BackendPostgres),
		DatabaseURL:             getenv("DATABASE_URL"),
		FirebaseCredentialsJSON: getenv("FIREBASE_SERVICE_ACCOUNT_JSON"),
		FirebaseCredentialsFile: get("FIREBASE_CREDENTIALS_FILE", "./serviceAccountKey.json"),
		FirebaseProjectID:       getenv("FIREBASE_PROJECT_ID"),
		FirebaseStorageBucket:   getenv("FIREBASE_STORAGE_BUCKET"),
		ClerkSecretKey:          getenv("CLERK_SECRET_KEY"),
		MediaBackend:            get("MEDIA_BACKEND", MediaNone),
		SpacesKey:               getenv("SPACES_KEY"),
		SpacesSecret:            getenv("SPACES_SECRET"),
		SpacesRegion:            get("SPACES_REGION", "fra1"),
		SpacesBucket:            getenv("SPACES_BUCKET"),
	}

	var errs []error

	if cfg.ClerkSecretKey == "" {
		errs = append(errs, errors.New("CLERK_SECRET_KEY environment variable is not set"))
	}

	switch cfg.StoreBackend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL environment variable is not set"))
		}
	case BackendFirestore, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend))
	}

	switch cfg.MediaBackend {
	case MediaSpaces:
		if cfg.SpacesKey == "" || cfg.SpacesSecret == "" || cfg.SpacesBucket == "" {
			errs = append(errs, errors.New("SPACES_KEY, SPACES_SECRET and SPACES_BUCKET are required for MEDIA_BACKEND=spaces"))
		}
	case MediaFirebase:
		if cfg.FirebaseStorageBucket == "" {
			errs = append(errs, errors.New("FIREBASE_STORAGE_BUCKET is required for MEDIA_BACKEND=firebase"))
		}
	case MediaNone:
	default:
		errs = append(errs, fmt.Errorf("unknown MEDIA_BACKEND %q", cfg.MediaBackend))
	}

	loc, err := time.LoadLocation(get("STREAK_TIMEZONE", "Local"))
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid STREAK_TIMEZONE: %w", err))
	}
	cfg.StreakTimezone = loc

	if cfg.RecentCommentsLimit, err = positiveInt(get("RECENT_COMMENTS_LIMIT", "3")); err != nil {
		errs = append(errs, fmt.Errorf("invalid RECENT_COMMENTS_LIMIT: %w", err))
	}
	if cfg.ChallengeCacheSize, err = positiveInt(get("CHALLENGE_CACHE_SIZE", "256")); err != nil {
		errs = append(errs, fmt.Errorf("invalid CHALLENGE_CACHE_SIZE: %w", err))
	}
	if cfg.StreakSweepInterval, err = time.ParseDuration(get("STREAK_SWEEP_INTERVAL", "1h")); err != nil {
		errs = append(errs, fmt.Errorf("invalid STREAK_SWEEP_INTERVAL: %w", err))
	} else if cfg.StreakSweepInterval <= 0 {
		errs = append(errs, errors.New("STREAK_SWEEP_INTERVAL must be positive"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func positiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
