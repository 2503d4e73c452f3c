package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// countingSyncer считает вызовы Sync.
type countingSyncer struct {
	calls atomic.Int32
	err   error
}

func (s *countingSyncer) Sync(ctx context.Context) (int, error) {
	s.calls.Add(1)
	return 5, s.err
}

func TestNewCatalogSyncScheduler_InvalidSchedule(t *testing.T) {
	if _, err := NewCatalogSyncScheduler(&countingSyncer{}, "every tuesday", testLogger()); err == nil {
		t.Error("ожидалась ошибка разбора расписания")
	}
}

func TestCatalogSyncScheduler_RunOnce(t *testing.T) {
	syncer := &countingSyncer{err: errors.New("api down")}
	s, err := NewCatalogSyncScheduler(syncer, "*/5 * * * *", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	// Ошибка синхронизации только логируется
	s.RunOnce(context.Background())
	if syncer.calls.Load() != 1 {
		t.Errorf("calls = %d", syncer.calls.Load())
	}
}

func TestCatalogSyncScheduler_StartStop(t *testing.T) {
	syncer := &countingSyncer{}
	s, err := NewCatalogSyncScheduler(syncer, "@every 1s", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for syncer.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	s.Stop()

	if syncer.calls.Load() == 0 {
		t.Fatal("синхронизация не запустилась по расписанию")
	}
	after := syncer.calls.Load()
	time.Sleep(1200 * time.Millisecond)
	if syncer.calls.Load() != after {
		t.Error("после Stop синхронизация не должна запускаться")
	}
}

func TestCatalogSyncScheduler_StopWithoutStart(t *testing.T) {
	s, err := NewCatalogSyncScheduler(&countingSyncer{}, "@hourly", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	s.Stop()
}
