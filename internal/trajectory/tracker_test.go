package trajectory

import (
	"math"
	"testing"
	"time"

	"github.com/somalab/autonomic-monitory/internal/features"
)

func snapAt(coupling, ampNorm float64, breathRate float64) features.Snapshot {
	rate := breathRate
	return features.Snapshot{
		CouplingScore: coupling,
		AmplitudeNorm: ampNorm,
		BreathRate:    &rate,
	}
}

func TestTracker_ColdStart(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	kin := tr.Append(snapAt(0.3, 0.4, 12), time.Unix(0, 0))

	if kin.PhaseLabel != PhaseWarmingUp {
		t.Errorf("Expected %q on first append, got %q", PhaseWarmingUp, kin.PhaseLabel)
	}
	if kin.VelocityMag != 0 {
		t.Errorf("Expected zero velocity on first append, got %f", kin.VelocityMag)
	}
	// Единый дефолт устойчивости для холодного старта
	if kin.Stability != DefaultStability {
		t.Errorf("Expected default stability %f, got %f", DefaultStability, kin.Stability)
	}
	if kin.PathSignature != 0 {
		t.Errorf("Expected zero path signature on first append, got %f", kin.PathSignature)
	}
}

func TestTracker_PositionMapping(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	// Дыхание 12/мин в диапазоне [4,20] дает ось 0.5
	kin := tr.Append(snapAt(0.7, 0.25, 12), time.Unix(0, 0))
	want := [3]float64{0.7, 0.5, 0.25}
	for i := range want {
		if math.Abs(kin.Position[i]-want[i]) > 1e-9 {
			t.Errorf("Position axis %d = %f, want %f", i, kin.Position[i], want[i])
		}
	}

	// Отсутствующая оценка дыхания дает середину диапазона
	tr2 := NewTracker(DefaultConfig())
	kin = tr2.Append(features.Snapshot{CouplingScore: 0.2, AmplitudeNorm: 0.3}, time.Unix(0, 0))
	if kin.Position[1] != 0.5 {
		t.Errorf("Expected midpoint 0.5 for missing breath rate, got %f", kin.Position[1])
	}
}

func TestTracker_HistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistorySize = 30
	tr := NewTracker(cfg)

	for i := 0; i < 50; i++ {
		tr.Append(snapAt(0.3, 0.3, 12), time.Unix(int64(i), 0))
	}

	if len(tr.History()) != 30 {
		t.Errorf("Expected history bounded to 30, got %d", len(tr.History()))
	}
}

func TestTracker_MotionlessIntegrityAndStability(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	var kin Kinematics
	for i := 0; i < 10; i++ {
		kin = tr.Append(snapAt(0.5, 0.5, 12), time.Unix(int64(i), 0))
	}

	// Почти неподвижная траектория: высокая интегральность по определению
	if kin.Integrity < 0.99 {
		t.Errorf("Expected high integrity for motionless trajectory, got %f", kin.Integrity)
	}
	if kin.Stability < 0.99 {
		t.Errorf("Expected high stability for motionless trajectory, got %f", kin.Stability)
	}
	if kin.PhaseLabel != PhaseDwellingCoherent {
		t.Errorf("Expected %q for motionless trajectory, got %q", PhaseDwellingCoherent, kin.PhaseLabel)
	}
}

// TestTracker_PathSignatureSessionLengthInvariant проверяет, что оконная
// сигнатура пути зависит только от динамики внутри окна истории:
// две сессии с одинаковой мгновенной динамикой, но разной общей
// длительностью обязаны давать одно значение
func TestTracker_PathSignatureSessionLengthInvariant(t *testing.T) {
	run := func(ticks int) Kinematics {
		tr := NewTracker(DefaultConfig())
		var kin Kinematics
		for i := 0; i < ticks; i++ {
			if i%2 == 0 {
				kin = tr.Append(snapAt(0.2, 0.3, 12), time.Unix(int64(i), 0))
			} else {
				kin = tr.Append(snapAt(0.3, 0.35, 12), time.Unix(int64(i), 0))
			}
		}
		return kin
	}

	short := run(40)
	long := run(400)

	if short.PathSignature <= 0 {
		t.Fatal("Expected positive path signature for moving trajectory")
	}
	if math.Abs(short.PathSignature-long.PathSignature) > 1e-9 {
		t.Errorf("Path signature must not grow with session length: short=%f long=%f",
			short.PathSignature, long.PathSignature)
	}
}

func TestTracker_SessionPathAccumulates(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	for i := 0; i < 100; i++ {
		if i%2 == 0 {
			tr.Append(snapAt(0.2, 0.3, 12), time.Unix(int64(i), 0))
		} else {
			tr.Append(snapAt(0.4, 0.3, 12), time.Unix(int64(i), 0))
		}
	}

	// Накопленный путь сессии растет, но в оконную сигнатуру не входит
	if tr.SessionPathLength() < 19.0 {
		t.Errorf("Expected accumulated session path ~19.8, got %f", tr.SessionPathLength())
	}
}

func TestTracker_BoundedRanges(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	// Резкие скачки по всем осям не должны выбивать поля из диапазонов
	positions := []features.Snapshot{
		snapAt(0.0, 0.0, 4),
		snapAt(1.0, 1.0, 20),
		snapAt(0.0, 1.0, 4),
		snapAt(1.0, 0.0, 20),
		snapAt(0.5, 0.5, 12),
	}
	for i := 0; i < 20; i++ {
		kin := tr.Append(positions[i%len(positions)], time.Unix(int64(i), 0))

		if kin.Stability < 0 || kin.Stability > 1 {
			t.Errorf("Stability out of [0,1]: %f", kin.Stability)
		}
		if kin.Integrity < 0 || kin.Integrity > 1 {
			t.Errorf("Integrity out of [0,1]: %f", kin.Integrity)
		}
		if kin.PathSignature < 0 || kin.PathSignature > 1 {
			t.Errorf("Path signature out of [0,1]: %f", kin.PathSignature)
		}
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	for i := 0; i < 10; i++ {
		tr.Append(snapAt(float64(i)*0.1, 0.3, 12), time.Unix(int64(i), 0))
	}

	tr.Reset()

	if len(tr.History()) != 0 {
		t.Errorf("Expected empty history after reset, got %d", len(tr.History()))
	}
	if tr.SessionPathLength() != 0 {
		t.Errorf("Expected zero session path after reset, got %f", tr.SessionPathLength())
	}

	kin := tr.Append(snapAt(0.3, 0.3, 12), time.Unix(100, 0))
	if kin.PhaseLabel != PhaseWarmingUp {
		t.Errorf("Expected %q after reset, got %q", PhaseWarmingUp, kin.PhaseLabel)
	}
}

func TestPhaseLabel_Transitions(t *testing.T) {
	cfg := DefaultConfig()

	cases := []struct {
		name string
		kin  Kinematics
		hist int
		want string
	}{
		{"warming up", Kinematics{}, 2, PhaseWarmingUp},
		{"dwelling coherent", Kinematics{VelocityMag: 0.001, Stability: 0.95, Integrity: 0.9}, 10, PhaseDwellingCoherent},
		{"dwelling", Kinematics{VelocityMag: 0.001, Stability: 0.95, Integrity: 0.5}, 10, PhaseDwelling},
		{"vigilant stillness", Kinematics{VelocityMag: 0.001, Stability: 0.5, Integrity: 0.3}, 10, PhaseVigilantStill},
		{"active transition", Kinematics{VelocityMag: 0.1, AccelerationMag: 0.1, Stability: 0.4}, 10, PhaseActiveTransition},
		{"inflection seeking", Kinematics{Velocity: [3]float64{0.02, 0, 0}, VelocityMag: 0.02, AccelerationMag: 0.1}, 10, PhaseInflectionSeek},
		{"inflection from-coupling", Kinematics{Velocity: [3]float64{-0.02, 0, 0}, VelocityMag: 0.02, AccelerationMag: 0.1}, 10, PhaseInflectionFrom},
		{"settling", Kinematics{VelocityMag: 0.03, AccelerationMag: 0.02, Stability: 0.8}, 10, PhaseSettling},
	}

	for _, c := range cases {
		if got := phaseLabel(c.kin, c.hist, cfg); got != c.want {
			t.Errorf("%s: phaseLabel = %q, want %q", c.name, got, c.want)
		}
	}
}
