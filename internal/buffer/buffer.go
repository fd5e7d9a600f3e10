package buffer

import (
	"errors"
	"sync"
	"time"
)

// Ошибки валидации входных сэмплов
var (
	ErrInvalidInterval = errors.New("invalid interval value")
	ErrZeroTimestamp   = errors.New("zero timestamp")
	ErrOutOfOrder      = errors.New("out of order sample")
)

// IntervalSample представляет одно измерение межударного интервала
type IntervalSample struct {
	ValueMS   int       // Длительность интервала в миллисекундах
	Timestamp time.Time // Момент регистрации измерения
}

// IntervalBuffer - скользящее окно фиксированной ёмкости для интервалов.
// При переполнении вытесняется самый старый сэмпл. Метки времени строго
// монотонны: сэмпл с ts <= последнего отклоняется, а не принимается молча,
// иначе конечные разности ниже по конвейеру теряют смысл.
type IntervalBuffer struct {
	mu       sync.RWMutex
	capacity int
	samples  []IntervalSample

	stats struct {
		accepted int64
		rejected int64
	}
}

// NewIntervalBuffer создает буфер с заданной ёмкостью
func NewIntervalBuffer(capacity int) *IntervalBuffer {
	if capacity < 2 {
		capacity = 2
	}
	return &IntervalBuffer{
		capacity: capacity,
		samples:  make([]IntervalSample, 0, capacity),
	}
}

// Append добавляет сэмпл в буфер.
// Возвращает ошибку если сэмпл невалиден или нарушает порядок времени.
func (b *IntervalBuffer) Append(valueMS int, ts time.Time) error {
	if valueMS <= 0 {
		return ErrInvalidInterval
	}
	if ts.IsZero() {
		return ErrZeroTimestamp
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if n := len(b.samples); n > 0 && !ts.After(b.samples[n-1].Timestamp) {
		b.stats.rejected++
		return ErrOutOfOrder
	}

	if len(b.samples) >= b.capacity {
		copy(b.samples, b.samples[1:])
		b.samples = b.samples[:len(b.samples)-1]
	}

	b.samples = append(b.samples, IntervalSample{ValueMS: valueMS, Timestamp: ts})
	b.stats.accepted++
	return nil
}

// Snapshot возвращает копию содержимого буфера (от старых к новым)
func (b *IntervalBuffer) Snapshot() []IntervalSample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]IntervalSample, len(b.samples))
	copy(out, b.samples)
	return out
}

// Len возвращает текущее число сэмплов
func (b *IntervalBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// Capacity возвращает ёмкость буфера
func (b *IntervalBuffer) Capacity() int {
	return b.capacity
}

// LastTimestamp возвращает метку времени последнего сэмпла
// (нулевое время, если буфер пуст)
func (b *IntervalBuffer) LastTimestamp() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.samples) == 0 {
		return time.Time{}
	}
	return b.samples[len(b.samples)-1].Timestamp
}

// Reset очищает буфер и счетчики; используется только на границе сессии
func (b *IntervalBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = b.samples[:0]
	b.stats.accepted = 0
	b.stats.rejected = 0
}

// GetStats возвращает счетчики принятых и отклоненных сэмплов
func (b *IntervalBuffer) GetStats() (accepted, rejected int64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats.accepted, b.stats.rejected
}
