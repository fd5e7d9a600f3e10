package classifier

import (
	"fmt"
	"math"

	"github.com/somalab/autonomic-monitory/internal/features"
)

// Mode - имя режима автономного состояния
type Mode string

// Фиксированный набор из шести режимов
const (
	ModeBaseline   Mode = "baseline"
	ModeCoherent   Mode = "coherent"
	ModeRestful    Mode = "restful"
	ModeFocused    Mode = "focused"
	ModeActivated  Mode = "activated"
	ModeRecovering Mode = "recovering"
)

// AllModes перечисляет режимы в стабильном порядке
var AllModes = []Mode{
	ModeBaseline,
	ModeCoherent,
	ModeRestful,
	ModeFocused,
	ModeActivated,
	ModeRecovering,
}

// FeatureVector - точка в 4-мерном пространстве признаков:
// сопряжение / ровность дыхания / нормированная амплитуда / обратная волатильность
type FeatureVector [4]float64

// Centroid - фиксированная опорная точка режима в пространстве признаков.
// Центроиды расставлены аналитически, не обучаются.
type Centroid [4]float64

// Config содержит настройки мягкой классификации и гистерезиса
type Config struct {
	Centroids map[Mode]Centroid

	// Веса осей в квадрате евклидова расстояния
	AxisWeights [4]float64

	// Температура softmax; меньше - острее распределение
	Temperature float64

	// Асимметричные пороги на режим: входной выше выходного,
	// оба выше равномерного фона 1/6
	EntryThresholds map[Mode]float64
	ExitThresholds  map[Mode]float64

	// Количество подряд подтверждающих тиков до статуса established
	EstablishTicks int

	// Штраф за вход с низкой уверенностью: если вес кандидата ниже
	// entry+PenaltyMargin, до установления требуется на
	// PenaltyExtraTicks тиков больше
	PenaltyMargin     float64
	PenaltyExtraTicks int

	// Режим по умолчанию, когда ни один кандидат не проходит входной порог
	DefaultMode Mode

	// Ёмкость журнала классификаций
	HistorySize int
}

// DefaultConfig возвращает откалиброванную конфигурацию классификатора.
// Ось ровности дыхания бинарна на практике ({0,1}), поэтому координата
// каждого центроида по этой оси закреплена на одном из двух достижимых
// значений: центроид в недостижимой точке делает режим структурно
// недостижимым (его максимальный вес не добирает до входного порога).
// Пара температура/пороги подобрана вместе и проверяется
// VerifyReachability; менять их по отдельности нельзя.
func DefaultConfig() Config {
	entry := make(map[Mode]float64, len(AllModes))
	exit := make(map[Mode]float64, len(AllModes))
	for _, m := range AllModes {
		entry[m] = 0.45
		exit[m] = 0.30
	}
	return Config{
		Centroids: map[Mode]Centroid{
			ModeBaseline:   {0.35, 0, 0.35, 0.50},
			ModeCoherent:   {0.85, 1, 0.70, 0.80},
			ModeRestful:    {0.50, 1, 0.40, 0.85},
			ModeFocused:    {0.45, 0, 0.30, 0.70},
			ModeActivated:  {0.20, 0, 0.50, 0.25},
			ModeRecovering: {0.60, 1, 0.55, 0.50},
		},
		AxisWeights:       [4]float64{1.25, 1.0, 0.75, 1.0},
		Temperature:       0.08,
		EntryThresholds:   entry,
		ExitThresholds:    exit,
		EstablishTicks:    3,
		PenaltyMargin:     0.10,
		PenaltyExtraTicks: 2,
		DefaultMode:       ModeBaseline,
		HistorySize:       100,
	}
}

// VectorFromSnapshot собирает вектор признаков для классификации
func VectorFromSnapshot(snap features.Snapshot) FeatureVector {
	steady := 0.0
	if snap.BreathSteady {
		steady = 1.0
	}
	return FeatureVector{
		snap.CouplingScore,
		steady,
		snap.AmplitudeNorm,
		1.0 - snap.Volatility,
	}
}

// Membership - вероятностные веса принадлежности режимам,
// сумма равна 1.0 с точностью до плавающей арифметики
type Membership map[Mode]float64

// ComputeMembership - чистая функция мягкой классификации:
// softmax(-взвешенное квадратичное расстояние / температура)
// по шести фиксированным центроидам
func ComputeMembership(v FeatureVector, cfg Config) Membership {
	weights := make(Membership, len(AllModes))
	var total float64
	for _, mode := range AllModes {
		d := weightedSqDist(v, cfg.Centroids[mode], cfg.AxisWeights)
		w := math.Exp(-d / cfg.Temperature)
		weights[mode] = w
		total += w
	}
	for mode := range weights {
		weights[mode] /= total
	}
	return weights
}

// ArgMax возвращает режим с наибольшим весом.
// При равенстве выигрывает более ранний в AllModes (стабильный порядок).
func (m Membership) ArgMax() (Mode, float64) {
	best := AllModes[0]
	bestW := math.Inf(-1)
	for _, mode := range AllModes {
		if w := m[mode]; w > bestW {
			best, bestW = mode, w
		}
	}
	return best, bestW
}

func weightedSqDist(v FeatureVector, c Centroid, w [4]float64) float64 {
	var sum float64
	for i := 0; i < 4; i++ {
		d := v[i] - float64(c[i])
		sum += w[i] * d * d
	}
	return sum
}

// VerifyReachability проверяет на этапе конфигурации, что каждый режим
// в принципе достижим: вес режима, вычисленный в его собственном
// центроиде, обязан превышать входной порог этого режима. Порог,
// который не добирается даже в центроиде, обнаруживается здесь,
// а не в продакшене.
func VerifyReachability(cfg Config) error {
	for _, mode := range AllModes {
		c, ok := cfg.Centroids[mode]
		if !ok {
			return fmt.Errorf("mode %s: missing centroid", mode)
		}
		m := ComputeMembership(FeatureVector(c), cfg)
		if m[mode] <= cfg.EntryThresholds[mode] {
			return fmt.Errorf("mode %s unreachable: membership at own centroid %.4f <= entry threshold %.4f",
				mode, m[mode], cfg.EntryThresholds[mode])
		}
	}
	return nil
}

// Validate проверяет согласованность конфигурации классификатора
func (cfg Config) Validate() error {
	if cfg.Temperature <= 0 {
		return fmt.Errorf("temperature must be positive, got %f", cfg.Temperature)
	}
	if cfg.EstablishTicks < 1 {
		return fmt.Errorf("establish ticks must be >= 1, got %d", cfg.EstablishTicks)
	}
	if cfg.HistorySize < 1 {
		return fmt.Errorf("history size must be >= 1, got %d", cfg.HistorySize)
	}
	if _, ok := cfg.Centroids[cfg.DefaultMode]; !ok {
		return fmt.Errorf("default mode %s has no centroid", cfg.DefaultMode)
	}
	uniform := 1.0 / float64(len(AllModes))
	for _, mode := range AllModes {
		c, ok := cfg.Centroids[mode]
		if !ok {
			return fmt.Errorf("mode %s: missing centroid", mode)
		}
		for i, coord := range c {
			if coord < 0 || coord > 1 {
				return fmt.Errorf("mode %s: centroid axis %d out of [0,1]: %f", mode, i, coord)
			}
		}
		// Ось ровности дыхания бинарна: центроид обязан стоять
		// на одном из двух реально достижимых значений
		if c[1] != 0 && c[1] != 1 {
			return fmt.Errorf("mode %s: breath-steady centroid coordinate %f is not a realizable value (must be 0 or 1)", mode, c[1])
		}
		entry, exit := cfg.EntryThresholds[mode], cfg.ExitThresholds[mode]
		if entry <= exit {
			return fmt.Errorf("mode %s: entry threshold %.3f must exceed exit threshold %.3f", mode, entry, exit)
		}
		if exit <= uniform {
			return fmt.Errorf("mode %s: exit threshold %.3f must exceed uniform baseline %.3f", mode, exit, uniform)
		}
	}
	return VerifyReachability(cfg)
}
