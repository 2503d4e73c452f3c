package database

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/filmrental/internal/config"
)

// setupTestDB запускает PostgreSQL в Docker-контейнере через testcontainers.
// Возвращает конфиг с FR_DB_DSN, указывающим на контейнер.
func setupTestDB(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("filmrental_test"),
		postgres.WithUsername("filmrental"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Не удалось получить DSN контейнера: %v", err)
	}
	t.Setenv("FR_DB_DSN", dsn)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestMigrateAndConnect(t *testing.T) {
	cfg := setupTestDB(t)
	logger := testLogger()

	if err := Migrate(cfg.MigrateURL(), logger); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// Повторный запуск — ErrNoChange не считается ошибкой
	if err := Migrate(cfg.MigrateURL(), logger); err != nil {
		t.Fatalf("повторный Migrate: %v", err)
	}

	ctx := context.Background()
	pool, err := Connect(ctx, cfg.DBDSN, logger)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer pool.Close()

	var exists bool
	err = pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'users')`,
	).Scan(&exists)
	if err != nil {
		t.Fatalf("проверка таблицы: %v", err)
	}
	if !exists {
		t.Error("таблица users не создана миграцией")
	}

	status, msg := NewReadinessChecker(pool).CheckReady()
	if status != "ok" {
		t.Errorf("CheckReady() = %q (%s), ожидался ok", status, msg)
	}
}

func TestConnect_InvalidDSN(t *testing.T) {
	_, err := Connect(context.Background(), "://bad dsn", testLogger())
	if err == nil {
		t.Error("ожидалась ошибка для некорректного DSN")
	}
}
