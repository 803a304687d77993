package repository

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setupTestDB(t *testing.T) *sqlx.DB {
	_ = godotenv.Load("../../../.env")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		getEnv("DB_USER", "kanso_user"),
		getEnv("DB_PASSWORD", "secret"),
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "kanso_db"),
	)

	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		t.Skipf("Skipping integration tests: database connection failed: %v", err)
	}
	return db
}

func setupTestRedis(t *testing.T) *redis.Client {
	_ = godotenv.Load("../../../.env")

	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", getEnv("REDIS_HOST", "localhost"), getEnv("REDIS_PORT", "6379")),
	})
	if err := client.Ping(t.Context()).Err(); err != nil {
		t.Skipf("Skipping integration tests: redis connection failed: %v", err)
	}
	return client
}

func newTestSync(t *testing.T, id, userID string, now time.Time) *domain.Synchronization {
	t.Helper()
	s, err := domain.NewSynchronization(domain.NewSynchronizationInput{
		ID:     id,
		UserID: userID,
		Name:   "table_" + id,
		URL:    "http://example.com/" + id + ".csv",
	}, now)
	if err != nil {
		t.Fatalf("failed to build synchronization: %v", err)
	}
	s.Touch(now)
	return s
}
