package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/somalab/autonomic-monitory/internal/pipeline"
)

func newTestManager(tickInterval time.Duration) (*Manager, *MemoryStore) {
	store := NewMemoryStore()
	settings := pipeline.DefaultSettings()
	settings.TickInterval = tickInterval
	return NewManager(store, store, settings), store
}

func TestManager_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(time.Hour)

	session, err := manager.CreateSession(ctx, &CreateSessionRequest{
		SubjectID:  "subject-1",
		OperatorID: "operator-1",
		Notes:      "test run",
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer manager.StopAll(ctx)

	if session.Status != SessionStatusActive {
		t.Errorf("Expected %s status, got %s", SessionStatusActive, session.Status)
	}
	if !manager.IsSessionActive(session.ID) {
		t.Error("Expected session to be active")
	}

	got, err := manager.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if got.Metadata.SubjectID != "subject-1" {
		t.Errorf("Unexpected subject id %q", got.Metadata.SubjectID)
	}

	if err := manager.StopSession(ctx, session.ID); err != nil {
		t.Fatalf("Failed to stop session: %v", err)
	}
	if manager.IsSessionActive(session.ID) {
		t.Error("Expected session inactive after stop")
	}

	// Остановленная сессия читается из хранилища со статусом STOPPED
	got, err = manager.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("Failed to get stopped session: %v", err)
	}
	if got.Status != SessionStatusStopped {
		t.Errorf("Expected %s status, got %s", SessionStatusStopped, got.Status)
	}
	if got.StoppedAt == nil {
		t.Error("Expected stopped_at to be set")
	}

	// Повторная остановка - ошибка
	if err := manager.StopSession(ctx, session.ID); err == nil {
		t.Error("Expected error on double stop")
	}
}

func TestManager_AddSample(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(time.Hour)

	session, err := manager.CreateSession(ctx, &CreateSessionRequest{})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer manager.StopAll(ctx)

	base := time.Now()
	for i := 0; i < 10; i++ {
		ts := base.Add(time.Duration(i) * 800 * time.Millisecond)
		if err := manager.AddSample(session.ID, 800, ts, nil); err != nil {
			t.Fatalf("AddSample failed at %d: %v", i, err)
		}
	}

	// Сэмпл с нарушением порядка отклоняется, но сессию не ломает
	if err := manager.AddSample(session.ID, 800, base, nil); err == nil {
		t.Error("Expected error for out-of-order sample")
	}

	got, _ := manager.GetSession(ctx, session.ID)
	if got.TotalSamples != 10 {
		t.Errorf("Expected 10 accepted samples, got %d", got.TotalSamples)
	}

	if err := manager.AddSample("missing-session", 800, time.Now(), nil); err == nil {
		t.Error("Expected error for unknown session")
	}
}

// TestManager_TickDeliversRecords проверяет доставку записей тика
// в кэш и архив через раннер сессии
func TestManager_TickDeliversRecords(t *testing.T) {
	ctx := context.Background()
	manager, store := newTestManager(50 * time.Millisecond)

	session, err := manager.CreateSession(ctx, &CreateSessionRequest{})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	base := time.Now()
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * 800 * time.Millisecond)
		if err := manager.AddSample(session.ID, 800, ts, nil); err != nil {
			t.Fatalf("AddSample failed: %v", err)
		}
	}

	// Ждем несколько тиков раннера
	time.Sleep(300 * time.Millisecond)

	rec, err := manager.LatestRecord(ctx, session.ID)
	if err != nil {
		t.Fatalf("Failed to get latest record: %v", err)
	}
	if rec.SessionID != session.ID {
		t.Errorf("Record for wrong session: %q", rec.SessionID)
	}
	if rec.Mode.PrimaryMode == "" {
		t.Error("Expected classified mode in delivered record")
	}

	if err := manager.StopSession(ctx, session.ID); err != nil {
		t.Fatalf("Failed to stop session: %v", err)
	}

	// После остановки последняя запись остается доступной из кэша
	cached, err := store.GetLatestRecord(ctx, session.ID)
	if err != nil {
		t.Fatalf("Expected cached record after stop: %v", err)
	}
	if cached.SessionID != session.ID {
		t.Errorf("Cached record for wrong session: %q", cached.SessionID)
	}

	// Архив накопил записи тиков
	records, err := manager.ListRecords(ctx, session.ID, 100, 0)
	if err != nil {
		t.Fatalf("Failed to list records: %v", err)
	}
	if len(records) == 0 {
		t.Error("Expected archived tick records")
	}
}

func TestManager_ResetSession(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(time.Hour)

	session, err := manager.CreateSession(ctx, &CreateSessionRequest{})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer manager.StopAll(ctx)

	base := time.Now()
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * 800 * time.Millisecond)
		if err := manager.AddSample(session.ID, 800, ts, nil); err != nil {
			t.Fatalf("AddSample failed: %v", err)
		}
	}

	if err := manager.ResetSession(session.ID); err != nil {
		t.Fatalf("Failed to reset session: %v", err)
	}

	// После полного сброса порядок времени начинается заново
	if err := manager.AddSample(session.ID, 800, base, nil); err != nil {
		t.Errorf("Expected sample accepted after reset: %v", err)
	}

	if err := manager.ResetSession("missing-session"); err == nil {
		t.Error("Expected error resetting unknown session")
	}
}

// TestManager_ConcurrentSamplesAndReads гоняет прием сэмплов параллельно
// с чтением и сериализацией сессии: живой указатель не должен утекать
// наружу, иначе маршалинг читает мутируемые поля без синхронизации
// (ловится детектором гонок)
func TestManager_ConcurrentSamplesAndReads(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(time.Hour)

	session, err := manager.CreateSession(ctx, &CreateSessionRequest{})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer manager.StopAll(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		base := time.Now()
		for i := 0; i < 200; i++ {
			ts := base.Add(time.Duration(i) * 800 * time.Millisecond)
			if err := manager.AddSample(session.ID, 800, ts, nil); err != nil {
				t.Errorf("AddSample failed: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		got, err := manager.GetSession(ctx, session.ID)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if _, err := json.Marshal(got); err != nil {
			t.Fatalf("Failed to marshal session: %v", err)
		}
	}
	wg.Wait()

	got, _ := manager.GetSession(ctx, session.ID)
	if got.TotalSamples != 200 {
		t.Errorf("Expected 200 accepted samples, got %d", got.TotalSamples)
	}
}

func TestManager_DeleteSession(t *testing.T) {
	ctx := context.Background()
	manager, store := newTestManager(time.Hour)

	session, err := manager.CreateSession(ctx, &CreateSessionRequest{})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if err := manager.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("Failed to delete session: %v", err)
	}

	if manager.IsSessionActive(session.ID) {
		t.Error("Expected session inactive after delete")
	}
	if _, err := store.GetSession(ctx, session.ID); err == nil {
		t.Error("Expected session gone from store")
	}
}

func TestManager_ListSessions(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(time.Hour)
	defer manager.StopAll(ctx)

	for i := 0; i < 3; i++ {
		if _, err := manager.CreateSession(ctx, &CreateSessionRequest{}); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
	}

	sessions, err := manager.ListSessions(ctx, 10, 0)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(sessions) != 3 {
		t.Errorf("Expected 3 sessions, got %d", len(sessions))
	}
}
