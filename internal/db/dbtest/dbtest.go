package dbtest

import (
	"context"
	"os"
	"testing"

	"crazygift/internal/db"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool поднимает пул для интеграционных тестов. Без TEST_DATABASE_URL тест пропускается
func Pool(t testing.TB) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL не задан")
	}
	if err := db.Migrate(url); err != nil {
		t.Fatalf("миграции: %v", err)
	}

	pool, err := db.Connect(context.Background(), url, 10)
	if err != nil {
		t.Fatalf("подключение к базе: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(context.Background(),
		`TRUNCATE audit_logs, referral_transactions, transactions, inventory, users, cases RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("очистка таблиц: %v", err)
	}
	return pool
}
