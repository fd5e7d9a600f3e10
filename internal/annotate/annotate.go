package annotate

import (
	"fmt"

	"github.com/somalab/autonomic-monitory/internal/classifier"
)

// Аннотации движения классифицированного режима
const (
	MovementSettled     = "settled"
	MovementApproaching = "approaching"
	MovementReceding    = "receding"
	MovementOscillating = "oscillating"
)

// Config содержит настройки аннотатора движения
type Config struct {
	// Порог, ниже которого изменение веса считается нулевым
	Epsilon float64

	// Минимальное число точек траектории веса для вывода о движении
	MinPoints int
}

// DefaultConfig возвращает настройки аннотатора по умолчанию
func DefaultConfig() Config {
	return Config{
		Epsilon:   0.005,
		MinPoints: 3,
	}
}

// Annotation - человекочитаемая аннотация движения режима
type Annotation struct {
	Movement      string
	ComposedLabel string
}

// Annotate - чистая функция: выводит аннотацию движения из траектории
// весов принадлежности самого аннотируемого режима (modeWeights - недавние
// веса текущего режима, от старых к новым). Производные считаются именно
// по этой траектории, а не по постороннему скалярному сигналу: чужая
// производная может показывать "approaching" там, где вес режима падает.
// legacyTrend передается как контекст и в производных не участвует.
func Annotate(d classifier.Decision, modeWeights []float64, legacyTrend *float64, cfg Config) Annotation {
	movement := classifyMovement(modeWeights, cfg)

	// "settled" не несет информации и в составную метку не входит
	composed := string(d.Mode)
	if movement != MovementSettled {
		composed = fmt.Sprintf("%s (%s)", d.Mode, movement)
	}

	return Annotation{
		Movement:      movement,
		ComposedLabel: composed,
	}
}

// classifyMovement оценивает первую и вторую разности траектории веса
func classifyMovement(weights []float64, cfg Config) string {
	if len(weights) < cfg.MinPoints {
		return MovementSettled
	}

	diffs := make([]float64, len(weights)-1)
	for i := 1; i < len(weights); i++ {
		diffs[i-1] = weights[i] - weights[i-1]
	}

	// Осцилляция: значимые разности чередуют знак
	signFlips := 0
	lastSign := 0
	for _, d := range diffs {
		sign := 0
		switch {
		case d > cfg.Epsilon:
			sign = 1
		case d < -cfg.Epsilon:
			sign = -1
		}
		if sign != 0 && lastSign != 0 && sign != lastSign {
			signFlips++
		}
		if sign != 0 {
			lastSign = sign
		}
	}
	if signFlips >= 2 {
		return MovementOscillating
	}

	mean := 0.0
	for _, d := range diffs {
		mean += d
	}
	mean /= float64(len(diffs))

	switch {
	case mean > cfg.Epsilon:
		return MovementApproaching
	case mean < -cfg.Epsilon:
		return MovementReceding
	default:
		return MovementSettled
	}
}
