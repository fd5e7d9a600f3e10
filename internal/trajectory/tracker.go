package trajectory

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/somalab/autonomic-monitory/internal/features"
)

// Метки фаз движения траектории
const (
	PhaseWarmingUp        = "warming up"
	PhaseVigilantStill    = "vigilant stillness"
	PhaseActiveTransition = "active transition"
	PhaseInflectionSeek   = "inflection (seeking)"
	PhaseInflectionFrom   = "inflection (from-coupling)"
	PhaseSettling         = "settling"
	PhaseDwelling         = "dwelling"
	PhaseDwellingCoherent = "dwelling (coherent)"
)

// DefaultStability - единый дефолт устойчивости для всех случаев,
// когда кинематика не определена (холодный старт, мало истории).
// Совпадает с пределом формулы при нулевом движении.
const DefaultStability = 1.0

// Config содержит настройки трекера траектории
type Config struct {
	// Ёмкость окна истории состояний (при тике раз в секунду - секунды)
	HistorySize int

	// Минимальное число состояний для осмысленной кинематики
	MinHistory int

	// Диапазон нормализации частоты дыхания, вдохов/мин.
	// При отсутствии оценки используется середина диапазона (0.5)
	BreathRateMin float64
	BreathRateMax float64

	// Масштаб нормализации оконной скорости пути, ед/с
	MaxPathRate float64

	// Пороги классификации фазы движения
	LowVelocity   float64
	HighVelocity  float64
	LowAccel      float64
	HighAccel     float64
	HighStability float64
	HighIntegrity float64
}

// DefaultConfig возвращает настройки трекера по умолчанию
func DefaultConfig() Config {
	return Config{
		HistorySize:   30,
		MinHistory:    3,
		BreathRateMin: 4,
		BreathRateMax: 20,
		MaxPathRate:   0.5,
		LowVelocity:   0.01,
		HighVelocity:  0.05,
		LowAccel:      0.01,
		HighAccel:     0.05,
		HighStability: 0.9,
		HighIntegrity: 0.7,
	}
}

// State - позиция траектории в нормированном пространстве [0,1]^3
// с меткой времени. Оси: сопряжение / дыхание / амплитуда.
type State struct {
	Position  [3]float64
	Timestamp time.Time
}

// Kinematics - кинематика траектории за один тик.
// Все нормированные поля зажаты в свои диапазоны после вычисления.
type Kinematics struct {
	Position    [3]float64
	Velocity    [3]float64
	VelocityMag float64

	// Модуль конечно-разностной второй производной позиции.
	// Это модуль ускорения, а не геометрическая кривизна.
	AccelerationMag float64

	// Эвристика устойчивости, монотонно убывающая по скорости
	// и ускорению; не является доказательством устойчивости
	// в смысле теории динамических систем
	Stability float64

	// Интегральность траектории: самоподобие модулей скорости (50%)
	// плюс согласованность направлений по косинусной близости (50%).
	// Почти неподвижная траектория дает высокое значение по определению,
	// поэтому Integrity структурно связана со Stability через общий
	// источник (малое движение), их нельзя читать как независимые оценки.
	Integrity float64

	// Нормированная длина пути, пройденного внутри текущего окна
	// истории, деленная на временной охват того же окна.
	// Накопленная длина пути всей сессии здесь не участвует.
	PathSignature float64

	PhaseLabel string
}

// Tracker держит ограниченную историю состояний траектории и суммарную
// длину пути за сессию. Не потокобезопасен: все мутации сериализуются
// тиком пайплайна (одна критическая секция на сессию).
type Tracker struct {
	cfg     Config
	history []State

	// Длина пути за всю сессию; в оконную сигнатуру не входит
	sessionPathLen float64
}

// NewTracker создает трекер с заданными настройками
func NewTracker(cfg Config) *Tracker {
	if cfg.HistorySize < 2 {
		cfg.HistorySize = 2
	}
	return &Tracker{
		cfg:     cfg,
		history: make([]State, 0, cfg.HistorySize),
	}
}

// Append отображает снапшот признаков в позицию траектории, добавляет
// состояние в историю (вытесняя самое старое при переполнении)
// и возвращает кинематику текущего тика.
func (t *Tracker) Append(snap features.Snapshot, ts time.Time) Kinematics {
	pos := t.mapPosition(snap)

	if n := len(t.history); n > 0 {
		t.sessionPathLen += dist(pos, t.history[n-1].Position)
	}

	if len(t.history) >= t.cfg.HistorySize {
		copy(t.history, t.history[1:])
		t.history = t.history[:len(t.history)-1]
	}
	t.history = append(t.history, State{Position: pos, Timestamp: ts})

	return t.computeKinematics()
}

// History возвращает копию текущего окна истории
func (t *Tracker) History() []State {
	out := make([]State, len(t.history))
	copy(out, t.history)
	return out
}

// SessionPathLength возвращает длину пути, накопленную за сессию
func (t *Tracker) SessionPathLength() float64 {
	return t.sessionPathLen
}

// Reset очищает историю и накопленную длину пути;
// используется только на границе сессии
func (t *Tracker) Reset() {
	t.history = t.history[:0]
	t.sessionPathLen = 0
}

// mapPosition отображает снапшот на три оси:
// сопряжение / нормированное дыхание / нормированная амплитуда
func (t *Tracker) mapPosition(snap features.Snapshot) [3]float64 {
	breath := 0.5 // Середина диапазона при отсутствии оценки
	if snap.BreathRate != nil {
		span := t.cfg.BreathRateMax - t.cfg.BreathRateMin
		if span > 0 {
			breath = clamp01((*snap.BreathRate - t.cfg.BreathRateMin) / span)
		}
	}
	return [3]float64{
		clamp01(snap.CouplingScore),
		breath,
		clamp01(snap.AmplitudeNorm),
	}
}

func (t *Tracker) computeKinematics() Kinematics {
	n := len(t.history)
	k := Kinematics{
		Position:   t.history[n-1].Position,
		Stability:  DefaultStability,
		Integrity:  1.0,
		PhaseLabel: PhaseWarmingUp,
	}

	if n < 2 {
		return k
	}

	cur, prev := t.history[n-1], t.history[n-2]
	dt := cur.Timestamp.Sub(prev.Timestamp).Seconds()
	if dt > 0 {
		for i := 0; i < 3; i++ {
			k.Velocity[i] = (cur.Position[i] - prev.Position[i]) / dt
		}
		k.VelocityMag = norm3(k.Velocity)
	}

	if n >= 3 {
		prev2 := t.history[n-3]
		dt1 := prev.Timestamp.Sub(prev2.Timestamp).Seconds()
		dt2 := dt
		if dt1 > 0 && dt2 > 0 {
			var v1, v2 [3]float64
			for i := 0; i < 3; i++ {
				v1[i] = (prev.Position[i] - prev2.Position[i]) / dt1
				v2[i] = (cur.Position[i] - prev.Position[i]) / dt2
			}
			// Знаменатель - среднее двух соседних шагов по времени
			avgDt := (dt1 + dt2) / 2
			var accel [3]float64
			for i := 0; i < 3; i++ {
				accel[i] = (v2[i] - v1[i]) / avgDt
			}
			k.AccelerationMag = norm3(accel)
		}
	}

	k.Stability = clamp01(1.0 / (1.0 + 2.0*(k.VelocityMag+0.5*k.AccelerationMag)))
	k.Integrity = t.computeIntegrity()
	k.PathSignature = t.computePathSignature()
	k.PhaseLabel = phaseLabel(k, n, t.cfg)
	return k
}

// computeIntegrity считает интегральность по окну истории:
// автокорреляция модулей скорости на лаге 1 (нормировка по одному и
// тому же количеству точек в ковариации и дисперсиях) плюс
// согласованность направлений. Почти нулевая дисперсия движения
// дает 1.0 по определению.
func (t *Tracker) computeIntegrity() float64 {
	n := len(t.history)
	if n < 4 {
		return 1.0
	}

	vecs := make([][3]float64, 0, n-1)
	mags := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		dt := t.history[i].Timestamp.Sub(t.history[i-1].Timestamp).Seconds()
		if dt <= 0 {
			continue
		}
		var v [3]float64
		for j := 0; j < 3; j++ {
			v[j] = (t.history[i].Position[j] - t.history[i-1].Position[j]) / dt
		}
		vecs = append(vecs, v)
		mags = append(mags, norm3(v))
	}
	if len(mags) < 3 {
		return 1.0
	}

	// Самоподобие модулей скорости: Пирсон по выровненным окнам
	m := len(mags) - 1
	acNorm := 1.0
	if floats.Max(mags)-floats.Min(mags) > 1e-9 {
		r := stat.Correlation(mags[:m], mags[1:1+m], nil)
		if math.IsNaN(r) {
			r = 1.0
		}
		acNorm = clamp01((r + 1.0) / 2.0)
	}

	// Согласованность направлений: средняя косинусная близость
	// соседних векторов скорости; нулевые векторы пропускаются
	cosSum, cosCount := 0.0, 0
	for i := 1; i < len(vecs); i++ {
		a, b := vecs[i-1], vecs[i]
		na, nb := norm3(a), norm3(b)
		if na < 1e-9 || nb < 1e-9 {
			continue
		}
		cos := dot3(a, b) / (na * nb)
		cosSum += cos
		cosCount++
	}
	cosNorm := 1.0
	if cosCount > 0 {
		cosNorm = clamp01((cosSum/float64(cosCount) + 1.0) / 2.0)
	}

	return clamp01(0.5*acNorm + 0.5*cosNorm)
}

// computePathSignature: длина пути внутри текущего окна истории,
// деленная на временной охват того же окна и масштаб MaxPathRate.
// Накопленный путь сессии сюда не входит: иначе значение растет
// с длительностью сессии и выходит на потолок за минуты.
func (t *Tracker) computePathSignature() float64 {
	n := len(t.history)
	if n < 2 {
		return 0
	}
	pathLen := 0.0
	for i := 1; i < n; i++ {
		pathLen += dist(t.history[i].Position, t.history[i-1].Position)
	}
	spanSec := t.history[n-1].Timestamp.Sub(t.history[0].Timestamp).Seconds()
	if spanSec <= 0 || t.cfg.MaxPathRate <= 0 {
		return 0
	}
	return clamp01(pathLen / spanSec / t.cfg.MaxPathRate)
}

// phaseLabel - чистая функция классификации фазы движения по кинематике
// текущего тика; скрытой истории за пределами Kinematics нет
func phaseLabel(k Kinematics, historyLen int, cfg Config) string {
	if historyLen < cfg.MinHistory {
		return PhaseWarmingUp
	}

	lowMotion := k.VelocityMag < cfg.LowVelocity && k.AccelerationMag < cfg.LowAccel
	if lowMotion {
		switch {
		case k.Stability >= cfg.HighStability && k.Integrity >= cfg.HighIntegrity:
			return PhaseDwellingCoherent
		case k.Stability >= cfg.HighStability:
			return PhaseDwelling
		default:
			return PhaseVigilantStill
		}
	}

	if k.AccelerationMag >= cfg.HighAccel {
		if k.VelocityMag >= cfg.HighVelocity {
			return PhaseActiveTransition
		}
		// Перегиб: направление по оси сопряжения решает,
		// идет траектория к сопряжению или от него
		if k.Velocity[0] >= 0 {
			return PhaseInflectionSeek
		}
		return PhaseInflectionFrom
	}

	return PhaseSettling
}

func dist(a, b [3]float64) float64 {
	var sum float64
	for i := 0; i < 3; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func norm3(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func dot3(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
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
