package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/somalab/autonomic-monitory/internal/buffer"
	"github.com/somalab/autonomic-monitory/internal/session"
)

// SampleMessage - одно измерение интервала от транспортного слоя.
// Ядру не нужны никакие другие поля; hr - транзитный контекст.
type SampleMessage struct {
	IntervalMS int      `json:"interval_ms"`
	TsMS       int64    `json:"ts_ms"`
	HR         *float64 `json:"hr,omitempty"`
}

// AckMessage - подтверждение приема, отправляется каждые AckEveryN сэмплов
type AckMessage struct {
	Ack      int64 `json:"ack"`
	Rejected int64 `json:"rejected"`
}

// Config содержит настройки приема сэмплов
type Config struct {
	// Физиологически осмысленные пределы интервала, мс
	MinIntervalMS int
	MaxIntervalMS int

	// Частота подтверждений приема
	AckEveryN int
}

// DefaultConfig возвращает настройки приема по умолчанию
func DefaultConfig() Config {
	return Config{
		MinIntervalMS: 250,
		MaxIntervalMS: 3000,
		AckEveryN:     50,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// В продакшене следует проверять домен
		return true
	},
}

// Handler принимает поток сэмплов от устройств по WebSocket
// и передает их в пайплайн сессии
type Handler struct {
	cfg     Config
	manager *session.Manager

	stats struct {
		mu         sync.RWMutex
		received   int64
		dropped    int64
		outOfOrder int64
	}
}

// NewHandler создает обработчик приема
func NewHandler(cfg Config, manager *session.Manager) *Handler {
	return &Handler{
		cfg:     cfg,
		manager: manager,
	}
}

// HandleWebSocket обслуживает одно соединение устройства
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request, sessionID string) {
	if !h.manager.IsSessionActive(sessionID) {
		http.Error(w, "session is not active", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ERROR] Failed to upgrade ingest connection: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[INGEST] Device connected: session=%s remote=%s", sessionID, r.RemoteAddr)

	var acked, rejected int64
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ERROR] Ingest connection error: %v", err)
			}
			break
		}

		var msg SampleMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.incrementDropped()
			rejected++
			log.Printf("[WARN] Malformed sample dropped: %v", err)
			continue
		}

		if err := h.acceptSample(sessionID, msg); err != nil {
			rejected++
			continue
		}

		h.incrementReceived()
		acked++
		if h.cfg.AckEveryN > 0 && acked%int64(h.cfg.AckEveryN) == 0 {
			ack := AckMessage{Ack: acked, Rejected: rejected}
			if err := conn.WriteJSON(ack); err != nil {
				log.Printf("[WARN] Failed to send ack: %v", err)
			}
		}
	}

	log.Printf("[INGEST] Device disconnected: session=%s accepted=%d rejected=%d", sessionID, acked, rejected)
}

// acceptSample валидирует сэмпл и отдает его пайплайну.
// Сэмпл с нарушением порядка времени отклоняется, а не принимается
// молча: конечные разности ниже по конвейеру обязаны считаться
// по строго возрастающим меткам времени.
func (h *Handler) acceptSample(sessionID string, msg SampleMessage) error {
	if err := h.validateSample(msg); err != nil {
		h.incrementDropped()
		log.Printf("[WARN] Invalid sample dropped: %v", err)
		return err
	}

	ts := time.UnixMilli(msg.TsMS)
	if err := h.manager.AddSample(sessionID, msg.IntervalMS, ts, msg.HR); err != nil {
		if errors.Is(err, buffer.ErrOutOfOrder) {
			h.incrementOutOfOrder()
			log.Printf("[WARN] Out of order sample rejected: session=%s ts_ms=%d", sessionID, msg.TsMS)
		} else {
			h.incrementDropped()
			log.Printf("[WARN] Sample rejected: %v", err)
		}
		return err
	}
	return nil
}

func (h *Handler) validateSample(msg SampleMessage) error {
	if msg.IntervalMS < h.cfg.MinIntervalMS || msg.IntervalMS > h.cfg.MaxIntervalMS {
		return fmt.Errorf("interval out of range [%d, %d]: %d",
			h.cfg.MinIntervalMS, h.cfg.MaxIntervalMS, msg.IntervalMS)
	}
	if msg.TsMS <= 0 {
		return fmt.Errorf("invalid timestamp: %d", msg.TsMS)
	}
	if msg.HR != nil && (math.IsNaN(*msg.HR) || math.IsInf(*msg.HR, 0)) {
		return fmt.Errorf("invalid hr value: %f", *msg.HR)
	}
	return nil
}

// ===== Счетчики =====

func (h *Handler) incrementReceived() {
	h.stats.mu.Lock()
	h.stats.received++
	h.stats.mu.Unlock()
}

func (h *Handler) incrementDropped() {
	h.stats.mu.Lock()
	h.stats.dropped++
	h.stats.mu.Unlock()
}

func (h *Handler) incrementOutOfOrder() {
	h.stats.mu.Lock()
	h.stats.outOfOrder++
	h.stats.mu.Unlock()
}

// GetStats возвращает счетчики приема
func (h *Handler) GetStats() (received, dropped, outOfOrder int64) {
	h.stats.mu.RLock()
	defer h.stats.mu.RUnlock()
	return h.stats.received, h.stats.dropped, h.stats.outOfOrder
}
