package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/somalab/autonomic-monitory/internal/annotate"
	"github.com/somalab/autonomic-monitory/internal/buffer"
	"github.com/somalab/autonomic-monitory/internal/classifier"
	"github.com/somalab/autonomic-monitory/internal/features"
	"github.com/somalab/autonomic-monitory/internal/record"
	"github.com/somalab/autonomic-monitory/internal/trajectory"
)

// ErrTickOutOfOrder возвращается при тике с меткой времени раньше предыдущей
var ErrTickOutOfOrder = errors.New("tick out of order")

// Pipeline - вычислительное ядро одной сессии: буфер интервалов,
// трекер траектории, классификатор режимов и аннотатор движения.
// Весь тик выполняется как одна критическая секция; поступление
// сэмплов сериализуется с тиком тем же мьютексом. Конструируется
// на сессию и передается зависимым явно.
type Pipeline struct {
	mu sync.Mutex

	sessionID string
	settings  Settings

	buf     *buffer.IntervalBuffer
	tracker *trajectory.Tracker
	machine *classifier.Machine

	// Транзитный контекст пульса от устройства (не вычисляется ядром)
	hrContext *float64

	lastTickTS time.Time
	lastRecord *record.Record
}

// New создает пайплайн сессии с проверкой настроек
func New(sessionID string, settings Settings) (*Pipeline, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &Pipeline{
		sessionID: sessionID,
		settings:  settings,
		buf:       buffer.NewIntervalBuffer(settings.BufferCapacity),
		tracker:   trajectory.NewTracker(settings.Trajectory),
		machine:   classifier.NewMachine(settings.Classifier),
	}, nil
}

// AddInterval принимает одно измерение интервала от транспортного слоя.
// Сэмпл с нарушением порядка времени отклоняется с ошибкой,
// а не принимается молча.
func (p *Pipeline) AddInterval(valueMS int, ts time.Time, hr *float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.buf.Append(valueMS, ts); err != nil {
		return err
	}
	if hr != nil {
		v := *hr
		p.hrContext = &v
	}
	return nil
}

// Tick выполняет один проход пайплайна: признаки -> траектория ->
// классификация -> аннотация, и возвращает составную запись.
// Тик с меткой времени раньше предыдущей отклоняется; повторный тик
// с той же меткой идемпотентен и возвращает предыдущую запись без
// мутации состояния.
func (p *Pipeline) Tick(ts time.Time) (*record.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.lastTickTS.IsZero() {
		if ts.Before(p.lastTickTS) {
			return nil, fmt.Errorf("%w: %v before %v", ErrTickOutOfOrder, ts, p.lastTickTS)
		}
		if ts.Equal(p.lastTickTS) {
			return p.lastRecord, nil
		}
	}

	snap := features.Compute(p.buf.Snapshot(), ts, p.settings.Features)
	kin := p.tracker.Append(snap, ts)

	vec := classifier.VectorFromSnapshot(snap)
	weights := classifier.ComputeMembership(vec, p.settings.Classifier)
	decision := p.machine.Update(weights, ts)

	modeWeights := p.machine.RecentConfidences(p.settings.MembershipWindow)
	trend := snap.TrendScore
	ann := annotate.Annotate(decision, modeWeights, &trend, p.settings.Annotate)

	rec := p.buildRecord(ts, snap, kin, decision, ann)
	p.lastTickTS = ts
	p.lastRecord = rec
	return rec, nil
}

// Reset - полный сброс сессии: буфер, траектория, журнал режимов,
// гистерезис. Частичного сброса не существует.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Reset()
	p.tracker.Reset()
	p.machine.Reset()
	p.hrContext = nil
	p.lastTickTS = time.Time{}
	p.lastRecord = nil
}

// BufferStats возвращает счетчики принятых и отклоненных сэмплов
func (p *Pipeline) BufferStats() (accepted, rejected int64) {
	return p.buf.GetStats()
}

// LastRecord возвращает запись последнего тика (nil до первого тика)
func (p *Pipeline) LastRecord() *record.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRecord
}

func (p *Pipeline) buildRecord(ts time.Time, snap features.Snapshot, kin trajectory.Kinematics,
	decision classifier.Decision, ann annotate.Annotation) *record.Record {

	membership := make(map[string]float64, len(decision.Membership))
	for mode, w := range decision.Membership {
		membership[string(mode)] = w
	}

	var hr *float64
	if p.hrContext != nil {
		v := *p.hrContext
		hr = &v
	}
	var breath *float64
	if snap.BreathRate != nil {
		v := *snap.BreathRate
		breath = &v
	}

	return &record.Record{
		SchemaVersion: record.SchemaVersion,
		SessionID:     p.sessionID,
		TS:            ts,
		HRContext:     hr,
		Metrics: record.Metrics{
			Amp:                   snap.Amplitude,
			RhythmicCouplingScore: snap.CouplingScore,
			RhythmicCouplingLabel: snap.CouplingLabel,
			BreathRate:            breath,
			BreathSteady:          snap.BreathSteady,
			Volatility:            snap.Volatility,
			LegacyTrendScore:      snap.TrendScore,
			LegacyTrendLabel:      snap.TrendLabel,
		},
		Phase: record.Phase{
			Position:              kin.Position,
			Velocity:              kin.Velocity,
			VelocityMag:           kin.VelocityMag,
			AccelerationMagnitude: kin.AccelerationMag,
			Stability:             kin.Stability,
			TrajectoryIntegrity:   kin.Integrity,
			WindowedPathSignature: kin.PathSignature,
			PhaseLabel:            kin.PhaseLabel,
		},
		Mode: record.ModeRef{
			Membership:         membership,
			PrimaryMode:        string(decision.Mode),
			Status:             string(decision.Status),
			DwellTimeSec:       decision.DwellTime.Seconds(),
			MovementAnnotation: ann.Movement,
			ComposedLabel:      ann.ComposedLabel,
		},
	}
}
