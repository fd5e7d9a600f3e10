package classifier

import (
	"time"
)

// Status - статус гистерезисной машины режимов
type Status string

const (
	StatusUnknown     Status = "unknown"
	StatusProvisional Status = "provisional"
	StatusEstablished Status = "established"
)

// HistoryEntry - одна запись журнала классификаций
type HistoryEntry struct {
	Mode       Mode
	Timestamp  time.Time
	Confidence float64
}

// Decision - результат классификации за один тик
type Decision struct {
	Mode       Mode
	Status     Status
	Confidence float64
	DwellTime  time.Duration
	Membership Membership
}

// Machine - гистерезисная машина режимов: unknown -> provisional ->
// established. Установленный режим деградирует только при падении веса
// ниже выходного порога; вход требует превышения входного порога.
// Если лучший кандидат не проходит входной порог, машина опирается
// на режим по умолчанию, а не осциллирует между метками.
// Не потокобезопасна: сериализуется тиком пайплайна.
type Machine struct {
	cfg Config

	current   Mode
	hasMode   bool
	status    Status
	enteredAt time.Time

	// Подряд подтверждающие тики и требуемое их число
	// (с учетом штрафа за вход с низкой уверенностью)
	streak    int
	needTicks int

	history []HistoryEntry
}

// NewMachine создает машину в статусе unknown
func NewMachine(cfg Config) *Machine {
	return &Machine{
		cfg:     cfg,
		status:  StatusUnknown,
		history: make([]HistoryEntry, 0, cfg.HistorySize),
	}
}

// Update продвигает машину на один тик по свежим весам принадлежности
// и пишет результат в журнал. Единственный мутатор состояния.
func (m *Machine) Update(weights Membership, ts time.Time) Decision {
	candidate, candW := weights.ArgMax()

	switch {
	case !m.hasMode:
		if candW > m.cfg.EntryThresholds[candidate] {
			m.enter(candidate, candW, ts)
		} else {
			// Кандидат не прошел порог: опираемся на режим по умолчанию
			m.enter(m.cfg.DefaultMode, weights[m.cfg.DefaultMode], ts)
		}

	case m.status == StatusEstablished:
		// Установленный режим держится, пока вес не упал ниже
		// выходного порога - даже если argmax временно сменился
		if weights[m.current] < m.cfg.ExitThresholds[m.current] {
			m.status = StatusProvisional
			m.streak = 0
			if candidate != m.current && candW > m.cfg.EntryThresholds[candidate] {
				m.enter(candidate, candW, ts)
			}
		}

	default: // provisional
		switch {
		case candidate == m.current && candW > m.cfg.EntryThresholds[candidate]:
			m.streak++
			if m.streak >= m.needTicks {
				m.status = StatusEstablished
			}
		case candidate != m.current && candW > m.cfg.EntryThresholds[candidate]:
			m.enter(candidate, candW, ts)
		case weights[m.current] < m.cfg.ExitThresholds[m.current]:
			// Текущий режим потерял вес, а кандидат порог не прошел:
			// падаем на режим по умолчанию вместо метания между метками
			if m.current != m.cfg.DefaultMode {
				m.enter(m.cfg.DefaultMode, weights[m.cfg.DefaultMode], ts)
			} else {
				m.streak = 0
			}
		}
	}

	confidence := weights[m.current]
	m.appendHistory(HistoryEntry{Mode: m.current, Timestamp: ts, Confidence: confidence})

	return Decision{
		Mode:       m.current,
		Status:     m.status,
		Confidence: confidence,
		DwellTime:  ts.Sub(m.enteredAt),
		Membership: weights,
	}
}

// enter начинает удержание нового режима в статусе provisional
func (m *Machine) enter(mode Mode, weight float64, ts time.Time) {
	m.current = mode
	m.hasMode = true
	m.status = StatusProvisional
	m.enteredAt = ts
	m.streak = 1

	m.needTicks = m.cfg.EstablishTicks
	if weight < m.cfg.EntryThresholds[mode]+m.cfg.PenaltyMargin {
		// Вход с низкой уверенностью устанавливается медленнее
		m.needTicks += m.cfg.PenaltyExtraTicks
	}
}

func (m *Machine) appendHistory(e HistoryEntry) {
	if len(m.history) >= m.cfg.HistorySize {
		copy(m.history, m.history[1:])
		m.history = m.history[:len(m.history)-1]
	}
	m.history = append(m.history, e)
}

// History возвращает копию журнала классификаций (от старых к новым)
func (m *Machine) History() []HistoryEntry {
	out := make([]HistoryEntry, len(m.history))
	copy(out, m.history)
	return out
}

// RecentConfidences возвращает до limit последних записей журнала
// для текущего режима (веса принадлежности по тикам, от старых к новым)
func (m *Machine) RecentConfidences(limit int) []float64 {
	if !m.hasMode || limit <= 0 {
		return nil
	}
	out := make([]float64, 0, limit)
	start := len(m.history) - limit
	if start < 0 {
		start = 0
	}
	for _, e := range m.history[start:] {
		if e.Mode == m.current {
			out = append(out, e.Confidence)
		}
	}
	return out
}

// TransitionCount считает количество смен режима в журнале
func (m *Machine) TransitionCount() int {
	count := 0
	for i := 1; i < len(m.history); i++ {
		if m.history[i].Mode != m.history[i-1].Mode {
			count++
		}
	}
	return count
}

// Current возвращает текущий режим и статус машины
func (m *Machine) Current() (Mode, Status, bool) {
	return m.current, m.status, m.hasMode
}

// Reset возвращает машину в исходное состояние и очищает журнал;
// используется только на границе сессии
func (m *Machine) Reset() {
	m.current = ""
	m.hasMode = false
	m.status = StatusUnknown
	m.enteredAt = time.Time{}
	m.streak = 0
	m.needTicks = 0
	m.history = m.history[:0]
}
