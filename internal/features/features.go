package features

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/somalab/autonomic-monitory/internal/buffer"
)

// Метка для состояний, когда данных еще недостаточно
const LabelWarmingUp = "warming up"

// Config содержит все настройки вычисления признаков.
// Диапазоны и дефолты документированы в DefaultConfig.
type Config struct {
	// Лаги автокорреляции в ударах; покрывают типичную длину
	// дыхательного цикла (4-8 ударов на вдох-выдох)
	CouplingLags []int

	// Минимальное число сэмплов для оценки ритмического сопряжения
	MinCouplingSamples int

	// Минимальное число сэмплов для оценки частоты дыхания
	MinBreathSamples int

	// Минимальное расстояние между пиками в ударах
	PeakMinSeparation int

	// Максимальный коэффициент вариации расстояний между пиками,
	// при котором дыхание считается ровным
	BreathSteadyCVMax float64

	// Минимальная средняя длина дыхательного цикла в ударах для
	// флага steady. Альтернация интервалов удар-к-удару дает после
	// фильтрации регулярные короткопериодные пики; цикл короче этого
	// порога - альтернанс, а не дыхательная модуляция
	BreathMinCycleBeats float64

	// Масштаб нормализации амплитуды, мс
	AmplitudeScaleMS float64

	// Масштаб нормализации волатильности, мс
	VolatilityScaleMS float64

	// Веса компонент скалярного трендового скора (сумма = 1.0):
	// сопряжение / ровность дыхания / амплитуда / обратная волатильность
	TrendWeightCoupling   float64
	TrendWeightBreath     float64
	TrendWeightAmplitude  float64
	TrendWeightInverseVol float64
}

// DefaultConfig возвращает настройки по умолчанию
func DefaultConfig() Config {
	return Config{
		CouplingLags:          []int{4, 5, 6, 7, 8},
		MinCouplingSamples:    16,
		MinBreathSamples:      16,
		PeakMinSeparation:     3,
		BreathSteadyCVMax:     0.25,
		BreathMinCycleBeats:   5,
		AmplitudeScaleMS:      250,
		VolatilityScaleMS:     60,
		TrendWeightCoupling:   0.4,
		TrendWeightBreath:     0.2,
		TrendWeightAmplitude:  0.2,
		TrendWeightInverseVol: 0.2,
	}
}

// Snapshot - срез HRV-признаков за один тик. После создания не мутируется.
// Поля с недостаточным количеством данных несут сентинельные значения
// и метку LabelWarmingUp, а не ошибку (см. обработку в пайплайне).
type Snapshot struct {
	// Амплитуда: max-min интервалов в окне, мс; 0 при < 2 сэмплах
	Amplitude     float64
	AmplitudeNorm float64 // Амплитуда / AmplitudeScaleMS, зажата в [0,1]

	// Ритмическое сопряжение: лаговая автокорреляция, зажатая в [0,1].
	// Это корреляционный прокси, а не измерение фазовой синхронизации.
	CouplingScore float64
	CouplingLabel string

	// Оценка частоты дыхания, вдохов/мин; nil если данных недостаточно
	BreathRate   *float64
	BreathSteady bool

	// Волатильность: нормированный разброс последовательных разностей, [0,1]
	Volatility float64

	// Скалярный трендовый скор одного тика и его метка.
	// Не является интегральной оценкой траектории (см. trajectory.Kinematics)
	TrendScore float64
	TrendLabel string

	SampleCount int
	Timestamp   time.Time
}

// Compute вычисляет снапшот признаков по содержимому буфера.
// Чистая функция: никогда не возвращает ошибку, при нехватке данных
// отдает снапшот с сентинельными полями.
func Compute(samples []buffer.IntervalSample, ts time.Time, cfg Config) Snapshot {
	snap := Snapshot{
		SampleCount:   len(samples),
		Timestamp:     ts,
		CouplingLabel: LabelWarmingUp,
		TrendLabel:    LabelWarmingUp,
	}

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = float64(s.ValueMS)
	}

	if len(values) >= 2 {
		snap.Amplitude = floats.Max(values) - floats.Min(values)
		snap.AmplitudeNorm = clamp01(snap.Amplitude / cfg.AmplitudeScaleMS)
	}

	snap.Volatility = computeVolatility(values, cfg)

	if len(values) >= cfg.MinCouplingSamples {
		snap.CouplingScore = couplingScore(values, cfg.CouplingLags)
		snap.CouplingLabel = couplingLabel(snap.CouplingScore)
	}

	if len(values) >= cfg.MinBreathSamples {
		rate, steady := estimateBreath(values, cfg)
		snap.BreathRate = rate
		snap.BreathSteady = steady
	}

	if len(values) >= cfg.MinCouplingSamples {
		steadyScore := 0.0
		if snap.BreathSteady {
			steadyScore = 1.0
		}
		snap.TrendScore = cfg.TrendWeightCoupling*snap.CouplingScore +
			cfg.TrendWeightBreath*steadyScore +
			cfg.TrendWeightAmplitude*snap.AmplitudeNorm +
			cfg.TrendWeightInverseVol*(1.0-snap.Volatility)
		snap.TrendLabel = trendLabel(snap.TrendScore)
	}

	return snap
}

// couplingScore считает нормированную автокорреляцию на наборе лагов
// и берет лучший результат, зажатый в [0,1].
//
// Нормировка: для лага L берутся два выровненных окна длиной n-L,
// каждое со своим средним и своей дисперсией по одному и тому же
// количеству точек (Пирсон по выровненным окнам). Деление ковариации
// и дисперсии на разные количества точек раздувает сырое значение
// в n/(n-L) раз на малых буферах; зажим не должен это маскировать.
func couplingScore(values []float64, lags []int) float64 {
	best := 0.0
	for _, lag := range lags {
		m := len(values) - lag
		if lag <= 0 || m < 3 {
			continue
		}
		r := stat.Correlation(values[:m], values[lag:lag+m], nil)
		if math.IsNaN(r) {
			// Нулевая дисперсия одного из окон: сопряжение не определено
			continue
		}
		if r > best {
			best = r
		}
	}
	return clamp01(best)
}

func couplingLabel(score float64) string {
	switch {
	case score < 0.25:
		return "low"
	case score < 0.5:
		return "emerging"
	case score < 0.75:
		return "entrained"
	default:
		return "high"
	}
}

// computeVolatility - нормированное стандартное отклонение
// последовательных разностей; 0 для константного входа
func computeVolatility(values []float64, cfg Config) float64 {
	if len(values) < 3 {
		return 0
	}
	diffs := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		diffs[i-1] = values[i] - values[i-1]
	}
	sd := stat.StdDev(diffs, nil)
	if math.IsNaN(sd) {
		return 0
	}
	return clamp01(sd / cfg.VolatilityScaleMS)
}

// estimateBreath оценивает частоту дыхания по доминирующему расстоянию
// между локальными максимумами интервальной последовательности
// (дыхательная модуляция RR). Возвращает (nil, false) если пиков
// меньше двух. Флаг steady бинарный: регулярность расстояний между
// пиками по коэффициенту вариации, а не непрерывная мера; цикл короче
// BreathMinCycleBeats ударов флаг не получает, даже идеально регулярный
// (альтернация удар-к-удару регулярна, но дыханием не является).
func estimateBreath(values []float64, cfg Config) (*float64, bool) {
	peaks := findPeaks(values, cfg.PeakMinSeparation)
	if len(peaks) < 2 {
		return nil, false
	}

	spacings := make([]float64, len(peaks)-1)
	for i := 1; i < len(peaks); i++ {
		spacings[i-1] = float64(peaks[i] - peaks[i-1])
	}

	meanSpacing := stat.Mean(spacings, nil)
	meanRRSec := stat.Mean(values, nil) / 1000.0
	periodSec := meanSpacing * meanRRSec
	if periodSec <= 0 {
		return nil, false
	}
	rate := 60.0 / periodSec

	steady := false
	if len(spacings) >= 2 && meanSpacing >= cfg.BreathMinCycleBeats {
		cv := stat.StdDev(spacings, nil) / meanSpacing
		steady = cv <= cfg.BreathSteadyCVMax
	}

	return &rate, steady
}

// findPeaks возвращает индексы локальных максимумов с минимальным
// расстоянием minSep между соседними пиками (первый пик выигрывает)
func findPeaks(values []float64, minSep int) []int {
	if minSep < 1 {
		minSep = 1
	}
	var peaks []int
	for i := 1; i < len(values)-1; i++ {
		if values[i] > values[i-1] && values[i] >= values[i+1] {
			if len(peaks) == 0 || i-peaks[len(peaks)-1] >= minSep {
				peaks = append(peaks, i)
			}
		}
	}
	return peaks
}

func trendLabel(score float64) string {
	switch {
	case score < 0.2:
		return "quiet"
	case score < 0.4:
		return "drifting"
	case score < 0.6:
		return "mixed"
	case score < 0.8:
		return "coupled"
	default:
		return "resonant"
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
