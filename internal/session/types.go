package session

import (
	"context"
	"time"

	"github.com/somalab/autonomic-monitory/internal/record"
)

// SessionStatus представляет статус сессии мониторинга
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "ACTIVE"
	SessionStatusStopped SessionStatus = "STOPPED"
)

// Session представляет сессию мониторинга одного субъекта
type Session struct {
	ID              string        `json:"id"`
	Status          SessionStatus `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	StoppedAt       *time.Time    `json:"stopped_at,omitempty"`
	TotalDurationMs int64         `json:"total_duration_ms"`
	TotalSamples    int64         `json:"total_samples"`
	Metadata        Metadata      `json:"metadata,omitempty"`
}

// Metadata содержит дополнительную информацию о сессии
type Metadata struct {
	SubjectID   string                 `json:"subject_id,omitempty"`
	OperatorID  string                 `json:"operator_id,omitempty"`
	Notes       string                 `json:"notes,omitempty"`
	CustomData  map[string]interface{} `json:"custom_data,omitempty"`
	CreatedFrom string                 `json:"created_from,omitempty"` // "web", "device", "emulator"
}

// CreateSessionRequest представляет запрос на создание сессии
type CreateSessionRequest struct {
	SubjectID   string                 `json:"subject_id,omitempty"`
	OperatorID  string                 `json:"operator_id,omitempty"`
	Notes       string                 `json:"notes,omitempty"`
	CustomData  map[string]interface{} `json:"custom_data,omitempty"`
	CreatedFrom string                 `json:"created_from,omitempty"`
}

// SessionResponse представляет ответ с информацией о сессии
type SessionResponse struct {
	Session *Session       `json:"session"`
	Latest  *record.Record `json:"latest,omitempty"`
}

// CacheStore - интерфейс живого кэша сессий (Redis)
type CacheStore interface {
	SetSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	SetLatestRecord(ctx context.Context, rec *record.Record) error
	GetLatestRecord(ctx context.Context, sessionID string) (*record.Record, error)
}

// Repository - интерфейс долговременного хранилища (PostgreSQL)
type Repository interface {
	SaveSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ListSessions(ctx context.Context, limit, offset int) ([]*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	InsertRecord(ctx context.Context, rec *record.Record) error
	ListRecords(ctx context.Context, sessionID string, limit, offset int) ([]*record.Record, error)
}
