package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/somalab/autonomic-monitory/internal/pipeline"
	"github.com/somalab/autonomic-monitory/internal/record"
)

// liveSession связывает метаданные активной сессии с ее пайплайном
type liveSession struct {
	session *Session
	pipe    *pipeline.Pipeline
	runner  *pipeline.Runner
}

// Manager управляет сессиями мониторинга. Каждая активная сессия
// владеет собственным пайплайном; общего мутабельного состояния
// между сессиями нет, никаких глобальных реестров.
//
// Мьютекс менеджера защищает и карту live, и поля *Session активных
// сессий; наружу отдаются только копии, живой указатель не покидает
// менеджера.
type Manager struct {
	cache      CacheStore
	repository Repository
	settings   pipeline.Settings

	// Потребители записей, общие для всех сессий (hub, лог);
	// кэш и архив добавляются менеджером сами
	extraSinks []pipeline.RecordSink

	mu   sync.RWMutex
	live map[string]*liveSession
}

// NewManager создает менеджер сессий
func NewManager(cache CacheStore, repository Repository, settings pipeline.Settings, extraSinks ...pipeline.RecordSink) *Manager {
	return &Manager{
		cache:      cache,
		repository: repository,
		settings:   settings,
		extraSinks: extraSinks,
		live:       make(map[string]*liveSession),
	}
}

// CreateSession создает новую сессию и запускает ее пайплайн
func (m *Manager) CreateSession(ctx context.Context, req *CreateSessionRequest) (*Session, error) {
	sessionID := uuid.New().String()

	session := &Session{
		ID:        sessionID,
		Status:    SessionStatusActive,
		StartedAt: time.Now(),
		Metadata: Metadata{
			SubjectID:   req.SubjectID,
			OperatorID:  req.OperatorID,
			Notes:       req.Notes,
			CustomData:  req.CustomData,
			CreatedFrom: req.CreatedFrom,
		},
	}

	pipe, err := pipeline.New(sessionID, m.settings)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	sinks := make([]pipeline.RecordSink, 0, len(m.extraSinks)+2)
	sinks = append(sinks, &cacheSink{cache: m.cache})
	sinks = append(sinks, &archiveSink{repository: m.repository})
	sinks = append(sinks, m.extraSinks...)

	if err := m.cache.SetSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session to cache: %w", err)
	}
	if err := m.repository.SaveSession(ctx, session); err != nil {
		log.Printf("[WARN] Failed to persist session %s: %v", sessionID, err)
	}

	runner := pipeline.NewRunner(pipe, m.settings.TickInterval, sinks...)

	m.mu.Lock()
	m.live[sessionID] = &liveSession{session: session, pipe: pipe, runner: runner}
	out := *session
	m.mu.Unlock()

	log.Printf("[SESSION] Created new session: %s", sessionID)
	return &out, nil
}

// GetSession получает сессию по ID: память -> кэш -> база.
// Для активной сессии возвращается копия, снятая под мьютексом:
// живой объект продолжает мутироваться счетчиком сэмплов.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	if ls, ok := m.live[sessionID]; ok {
		out := *ls.session
		m.mu.RUnlock()
		return &out, nil
	}
	m.mu.RUnlock()

	session, err := m.cache.GetSession(ctx, sessionID)
	if err == nil {
		return session, nil
	}

	return m.repository.GetSession(ctx, sessionID)
}

// AddSample принимает одно измерение интервала для активной сессии
func (m *Manager) AddSample(sessionID string, valueMS int, ts time.Time, hr *float64) error {
	m.mu.RLock()
	ls, ok := m.live[sessionID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session is not active: %s", sessionID)
	}

	if err := ls.pipe.AddInterval(valueMS, ts, hr); err != nil {
		return err
	}

	// Счетчик живой сессии мутируется только под мьютексом менеджера
	m.mu.Lock()
	ls.session.TotalSamples++
	m.mu.Unlock()
	return nil
}

// StopSession останавливает сессию и ее пайплайн
func (m *Manager) StopSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	ls, ok := m.live[sessionID]
	if ok {
		delete(m.live, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session is not active: %s", sessionID)
	}

	ls.runner.Stop()

	// Финальные мутации под тем же мьютексом, что и счетчик сэмплов;
	// дальше работаем со снимком
	now := time.Now()
	m.mu.Lock()
	ls.session.Status = SessionStatusStopped
	ls.session.StoppedAt = &now
	ls.session.TotalDurationMs = now.Sub(ls.session.StartedAt).Milliseconds()
	snapshot := *ls.session
	m.mu.Unlock()

	if err := m.cache.SetSession(ctx, &snapshot); err != nil {
		log.Printf("[WARN] Failed to update session in cache: %v", err)
	}
	if err := m.repository.SaveSession(ctx, &snapshot); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	log.Printf("[SESSION] Stopped session: %s, duration: %dms, samples: %d",
		sessionID, snapshot.TotalDurationMs, snapshot.TotalSamples)
	return nil
}

// ResetSession выполняет полный сброс пайплайна сессии: буфер,
// траектория, журнал режимов и гистерезис разом. Частичного
// сброса не существует.
func (m *Manager) ResetSession(sessionID string) error {
	m.mu.RLock()
	ls, ok := m.live[sessionID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session is not active: %s", sessionID)
	}

	ls.pipe.Reset()
	log.Printf("[SESSION] Reset session pipeline: %s", sessionID)
	return nil
}

// DeleteSession удаляет сессию отовсюду
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	if ls, ok := m.live[sessionID]; ok {
		ls.runner.Stop()
		delete(m.live, sessionID)
	}
	m.mu.Unlock()

	if err := m.cache.DeleteSession(ctx, sessionID); err != nil {
		log.Printf("[WARN] Failed to delete session from cache: %v", err)
	}
	if err := m.repository.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session from database: %w", err)
	}

	log.Printf("[SESSION] Deleted session: %s", sessionID)
	return nil
}

// ListSessions возвращает список сессий из хранилища
func (m *Manager) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	return m.repository.ListSessions(ctx, limit, offset)
}

// LatestRecord возвращает запись последнего тика сессии
func (m *Manager) LatestRecord(ctx context.Context, sessionID string) (*record.Record, error) {
	m.mu.RLock()
	if ls, ok := m.live[sessionID]; ok {
		if rec := ls.pipe.LastRecord(); rec != nil {
			m.mu.RUnlock()
			return rec, nil
		}
	}
	m.mu.RUnlock()

	return m.cache.GetLatestRecord(ctx, sessionID)
}

// ListRecords возвращает архив записей сессии
func (m *Manager) ListRecords(ctx context.Context, sessionID string, limit, offset int) ([]*record.Record, error) {
	return m.repository.ListRecords(ctx, sessionID, limit, offset)
}

// IsSessionActive проверяет, активна ли сессия
func (m *Manager) IsSessionActive(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.live[sessionID]
	return exists
}

// StopAll останавливает все активные сессии; используется при
// завершении сервиса
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.StopSession(ctx, id); err != nil {
			log.Printf("[WARN] Failed to stop session %s: %v", id, err)
		}
	}
}
