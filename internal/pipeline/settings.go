package pipeline

import (
	"fmt"
	"time"

	"github.com/somalab/autonomic-monitory/internal/annotate"
	"github.com/somalab/autonomic-monitory/internal/classifier"
	"github.com/somalab/autonomic-monitory/internal/features"
	"github.com/somalab/autonomic-monitory/internal/trajectory"
)

// SettingsVersion - версия структуры настроек ядра
const SettingsVersion = "1.0"

// Settings - явная версионированная конфигурация ядра: перечисляет все
// настраиваемые параметры (лаги, окна, центроиды, пороги, температуру)
// с документированными дефолтами. Передается явно при конструировании
// пайплайна сессии; никакого глобального мутабельного состояния.
type Settings struct {
	Version string

	// Ёмкость буфера интервалов
	BufferCapacity int

	// Период тика пайплайна (фиксированная каденция,
	// не зависит от каденции поступления сэмплов)
	TickInterval time.Duration

	// Окно недавних весов режима для аннотатора движения
	MembershipWindow int

	Features   features.Config
	Trajectory trajectory.Config
	Classifier classifier.Config
	Annotate   annotate.Config
}

// DefaultSettings возвращает настройки ядра по умолчанию.
//
// Открытый вопрос калибровки: должен ли набор лагов сопряжения
// адаптироваться к оцененной частоте дыхания. Оставлен как ручка
// конфигурации (Features.CouplingLags), адаптация не включена.
func DefaultSettings() Settings {
	return Settings{
		Version:          SettingsVersion,
		BufferCapacity:   64,
		TickInterval:     time.Second,
		MembershipWindow: 8,
		Features:         features.DefaultConfig(),
		Trajectory:       trajectory.DefaultConfig(),
		Classifier:       classifier.DefaultConfig(),
		Annotate:         annotate.DefaultConfig(),
	}
}

// Validate проверяет согласованность настроек, включая аналитическую
// проверку достижимости каждого режима (вес в собственном центроиде
// обязан превышать входной порог)
func (s Settings) Validate() error {
	if s.BufferCapacity < 2 {
		return fmt.Errorf("buffer capacity must be >= 2, got %d", s.BufferCapacity)
	}
	if s.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", s.TickInterval)
	}
	if s.MembershipWindow < 1 {
		return fmt.Errorf("membership window must be >= 1, got %d", s.MembershipWindow)
	}
	if len(s.Features.CouplingLags) == 0 {
		return fmt.Errorf("coupling lags must not be empty")
	}
	for _, lag := range s.Features.CouplingLags {
		if lag < 1 || lag >= s.BufferCapacity {
			return fmt.Errorf("coupling lag %d out of range [1, %d)", lag, s.BufferCapacity)
		}
	}
	if s.Trajectory.HistorySize < 2 {
		return fmt.Errorf("trajectory history size must be >= 2, got %d", s.Trajectory.HistorySize)
	}
	if s.Trajectory.BreathRateMax <= s.Trajectory.BreathRateMin {
		return fmt.Errorf("breath rate range is empty: [%f, %f]",
			s.Trajectory.BreathRateMin, s.Trajectory.BreathRateMax)
	}
	if err := s.Classifier.Validate(); err != nil {
		return fmt.Errorf("classifier config: %w", err)
	}
	return nil
}
