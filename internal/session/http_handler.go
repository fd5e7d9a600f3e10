package session

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// HTTPHandler обрабатывает HTTP запросы для управления сессиями (Presentation Layer)
type HTTPHandler struct {
	manager *Manager
}

// NewHTTPHandler создает новый HTTP обработчик
func NewHTTPHandler(manager *Manager) *HTTPHandler {
	return &HTTPHandler{
		manager: manager,
	}
}

// RegisterRoutes регистрирует маршруты в роутере
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/sessions").Subrouter()

	api.HandleFunc("", h.CreateSession).Methods("POST")
	api.HandleFunc("", h.ListSessions).Methods("GET")
	api.HandleFunc("/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/{id}/stop", h.StopSession).Methods("POST")
	api.HandleFunc("/{id}/reset", h.ResetSession).Methods("POST")
	api.HandleFunc("/{id}", h.DeleteSession).Methods("DELETE")
	api.HandleFunc("/{id}/latest", h.GetLatestRecord).Methods("GET")
	api.HandleFunc("/{id}/records", h.ListRecords).Methods("GET")
}

// CreateSession создает новую сессию
// @Summary Создать сессию мониторинга
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body CreateSessionRequest true "Параметры сессии"
// @Success 201 {object} SessionResponse "Созданная сессия"
// @Router /api/sessions [post]
func (h *HTTPHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.manager.CreateSession(r.Context(), &req)
	if err != nil {
		log.Printf("[ERROR] Failed to create session: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	respondJSON(w, http.StatusCreated, SessionResponse{Session: session})
}

// ListSessions возвращает список сессий
// @Summary Список сессий
// @Tags Sessions
// @Produce json
// @Param limit query int false "Максимум сессий в ответе"
// @Param offset query int false "Смещение"
// @Success 200 {object} map[string]interface{} "Список сессий"
// @Router /api/sessions [get]
func (h *HTTPHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := getQueryInt(r, "limit", 50)
	offset := getQueryInt(r, "offset", 0)

	sessions, err := h.manager.ListSessions(r.Context(), limit, offset)
	if err != nil {
		log.Printf("[ERROR] Failed to list sessions: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"limit":    limit,
		"offset":   offset,
		"count":    len(sessions),
	})
}

// GetSession получает информацию о сессии
// @Summary Информация о сессии
// @Tags Sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} SessionResponse "Сессия и последняя запись"
// @Router /api/sessions/{id} [get]
func (h *HTTPHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	session, err := h.manager.GetSession(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	// Последняя запись может отсутствовать до первого тика
	latest, _ := h.manager.LatestRecord(r.Context(), sessionID)

	respondJSON(w, http.StatusOK, SessionResponse{
		Session: session,
		Latest:  latest,
	})
}

// StopSession останавливает сессию
// @Summary Остановить сессию
// @Tags Sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} map[string]interface{} "Результат операции"
// @Router /api/sessions/{id}/stop [post]
func (h *HTTPHandler) StopSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := h.manager.StopSession(r.Context(), sessionID); err != nil {
		log.Printf("[ERROR] Failed to stop session %s: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "Failed to stop session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Session stopped successfully",
		"session_id": sessionID,
	})
}

// ResetSession выполняет полный сброс пайплайна сессии
// @Summary Сбросить пайплайн сессии
// @Tags Sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} map[string]interface{} "Результат операции"
// @Router /api/sessions/{id}/reset [post]
func (h *HTTPHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := h.manager.ResetSession(sessionID); err != nil {
		respondError(w, http.StatusNotFound, "Session is not active")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Session pipeline reset",
		"session_id": sessionID,
	})
}

// DeleteSession удаляет сессию
// @Summary Удалить сессию
// @Tags Sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} map[string]interface{} "Результат операции"
// @Router /api/sessions/{id} [delete]
func (h *HTTPHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := h.manager.DeleteSession(r.Context(), sessionID); err != nil {
		log.Printf("[ERROR] Failed to delete session %s: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Session deleted successfully",
		"session_id": sessionID,
	})
}

// GetLatestRecord возвращает запись последнего тика
// @Summary Последняя запись тика
// @Tags Records
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} record.Record "Запись тика"
// @Router /api/sessions/{id}/latest [get]
func (h *HTTPHandler) GetLatestRecord(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	rec, err := h.manager.LatestRecord(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "No record for session")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// ListRecords возвращает архив записей сессии
// @Summary Архив записей сессии
// @Tags Records
// @Produce json
// @Param id path string true "ID сессии"
// @Param limit query int false "Максимум записей в ответе"
// @Param offset query int false "Смещение"
// @Success 200 {object} map[string]interface{} "Записи тиков"
// @Router /api/sessions/{id}/records [get]
func (h *HTTPHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	limit := getQueryInt(r, "limit", 100)
	offset := getQueryInt(r, "offset", 0)

	records, err := h.manager.ListRecords(r.Context(), sessionID, limit, offset)
	if err != nil {
		log.Printf("[ERROR] Failed to list records for %s: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "Failed to list records")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"limit":   limit,
		"offset":  offset,
		"count":   len(records),
	})
}

// ===== Вспомогательные функции =====

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[ERROR] Failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func getQueryInt(r *http.Request, key string, defaultValue int) int {
	if value := r.URL.Query().Get(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
