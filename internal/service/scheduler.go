// scheduler.go — периодическая синхронизация каталога с удалённым API.
//
// CatalogSyncScheduler запускает CatalogService.Sync по cron-расписанию
// (FR_CATALOG_SYNC_SCHEDULE, стандартный 5-польный формат или @every).
//
// Prometheus-метрики:
//   - fr_catalog_sync_duration_seconds — длительность синхронизации
//   - fr_catalog_sync_total{result} — количество запусков по результату
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
)

var (
	catalogSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fr_catalog_sync_duration_seconds",
		Help:    "Длительность синхронизации каталога с удалённым API",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
	catalogSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fr_catalog_sync_total",
		Help: "Количество синхронизаций каталога по результату.",
	}, []string{"result"})
)

// CatalogSyncer — то, что умеет синхронизировать каталог.
type CatalogSyncer interface {
	Sync(ctx context.Context) (int, error)
}

// CatalogSyncScheduler — фоновый запуск синхронизации каталога по расписанию.
type CatalogSyncScheduler struct {
	syncer   CatalogSyncer
	schedule string
	logger   *slog.Logger

	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewCatalogSyncScheduler создаёт планировщик. Расписание проверяется сразу.
func NewCatalogSyncScheduler(syncer CatalogSyncer, schedule string, logger *slog.Logger) (*CatalogSyncScheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("расписание %q: %w", schedule, err)
	}
	return &CatalogSyncScheduler{
		syncer:   syncer,
		schedule: schedule,
		logger:   logger.With(slog.String("component", "catalog_sync")),
	}, nil
}

// Start регистрирует задачу и запускает cron.
// Пересекающиеся запуски пропускаются.
func (s *CatalogSyncScheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		s.cancel()
		return fmt.Errorf("регистрация задачи: %w", err)
	}
	s.cron.Start()

	s.logger.Info("Периодическая синхронизация каталога запущена",
		slog.String("schedule", s.schedule),
	)
	return nil
}

// RunOnce выполняет одну синхронизацию и логирует результат.
func (s *CatalogSyncScheduler) RunOnce(ctx context.Context) {
	start := time.Now()
	count, err := s.syncer.Sync(ctx)
	catalogSyncDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		catalogSyncTotal.WithLabelValues("error").Inc()
		s.logger.Warn("Ошибка синхронизации каталога",
			slog.String("error", err.Error()),
		)
		return
	}
	catalogSyncTotal.WithLabelValues("success").Inc()
	s.logger.Info("Синхронизация каталога завершена",
		slog.Int("count", count),
		slog.Duration("duration", time.Since(start)),
	)
}

// Stop останавливает cron и ждёт завершения текущего запуска.
func (s *CatalogSyncScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.logger.Info("Периодическая синхронизация каталога остановлена")
	}
}
