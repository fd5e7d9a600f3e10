package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/somalab/autonomic-monitory/internal/record"
)

// RecordSink - интерфейс потребителя записей тиков. Запись после
// построения не мутируется и разделяется всеми потребителями;
// потребитель не имеет права ее изменять.
type RecordSink interface {
	Consume(ctx context.Context, rec *record.Record) error
}

// LogSink пишет краткую сводку записи в лог
type LogSink struct{}

func (ls *LogSink) Consume(ctx context.Context, rec *record.Record) error {
	log.Printf("[TICK] session=%s mode=%s status=%s movement=%s phase=%q coupling=%.3f stability=%.3f",
		rec.SessionID,
		rec.Mode.PrimaryMode,
		rec.Mode.Status,
		rec.Mode.MovementAnnotation,
		rec.Phase.PhaseLabel,
		rec.Metrics.RhythmicCouplingScore,
		rec.Phase.Stability)
	return nil
}

// Runner гоняет пайплайн сессии с фиксированной каденцией и раздает
// каждую запись всем потребителям. Один экземпляр на сессию.
type Runner struct {
	pipe     *Pipeline
	interval time.Duration
	sinks    []RecordSink

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	stats struct {
		mu       sync.RWMutex
		ticks    int64
		sinkErrs int64
	}
}

// NewRunner создает раннер и запускает цикл тиков
func NewRunner(pipe *Pipeline, interval time.Duration, sinks ...RecordSink) *Runner {
	r := &Runner{
		pipe:     pipe,
		interval: interval,
		sinks:    sinks,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Runner) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.tickOnce(time.Now())

		case <-r.stopChan:
			return
		}
	}
}

func (r *Runner) tickOnce(ts time.Time) {
	rec, err := r.pipe.Tick(ts)
	if err != nil {
		if errors.Is(err, ErrTickOutOfOrder) {
			log.Printf("[WARN] Tick out of order, skipped: %v", err)
			return
		}
		log.Printf("[ERROR] Tick failed: %v", err)
		return
	}

	r.stats.mu.Lock()
	r.stats.ticks++
	r.stats.mu.Unlock()

	for _, sink := range r.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := sink.Consume(ctx, rec); err != nil {
			log.Printf("[ERROR] Sink failed to consume record: %v", err)
			r.stats.mu.Lock()
			r.stats.sinkErrs++
			r.stats.mu.Unlock()
		}
		cancel()
	}
}

// Stop останавливает цикл тиков и дожидается его завершения
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	<-r.done

	r.stats.mu.RLock()
	log.Printf("[STATS] Runner stopped: ticks=%d sink_errors=%d", r.stats.ticks, r.stats.sinkErrs)
	r.stats.mu.RUnlock()
}

// GetStats возвращает счетчики выполненных тиков и ошибок потребителей
func (r *Runner) GetStats() (ticks, sinkErrs int64) {
	r.stats.mu.RLock()
	defer r.stats.mu.RUnlock()
	return r.stats.ticks, r.stats.sinkErrs
}
