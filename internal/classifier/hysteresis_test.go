package classifier

import (
	"testing"
	"time"
)

// weightsFor строит распределение весов с заданным лидером,
// остаток размазывается поровну по остальным режимам
func weightsFor(leader Mode, leaderW float64) Membership {
	m := make(Membership, len(AllModes))
	rest := (1.0 - leaderW) / float64(len(AllModes)-1)
	for _, mode := range AllModes {
		if mode == leader {
			m[mode] = leaderW
		} else {
			m[mode] = rest
		}
	}
	return m
}

func TestMachine_EstablishesWithinBoundedTicks(t *testing.T) {
	cfg := DefaultConfig()
	machine := NewMachine(cfg)

	weights := ComputeMembership(FeatureVector(cfg.Centroids[ModeCoherent]), cfg)

	var d Decision
	start := time.Unix(0, 0)
	for i := 0; i < 60; i++ {
		d = machine.Update(weights, start.Add(time.Duration(i)*time.Second))

		// Уверенный вход: установление ровно за EstablishTicks тиков
		if i < cfg.EstablishTicks-1 && d.Status == StatusEstablished {
			t.Fatalf("Established too early at tick %d", i)
		}
		if i >= cfg.EstablishTicks-1 && d.Status != StatusEstablished {
			t.Fatalf("Expected established at tick %d, got %s", i, d.Status)
		}
		if d.Mode != ModeCoherent {
			t.Fatalf("Expected mode %s at tick %d, got %s", ModeCoherent, i, d.Mode)
		}
	}

	if d.DwellTime != 59*time.Second {
		t.Errorf("Expected dwell time 59s, got %s", d.DwellTime)
	}
	if machine.TransitionCount() != 0 {
		t.Errorf("Expected no transitions on a monotone session, got %d", machine.TransitionCount())
	}
}

func TestMachine_LowConfidenceEntryPenalty(t *testing.T) {
	cfg := DefaultConfig()
	machine := NewMachine(cfg)

	// Вес 0.50 проходит входной порог 0.45, но попадает в штрафную
	// полосу entry+margin: установление требует дополнительных тиков
	weights := weightsFor(ModeFocused, 0.50)

	needTicks := cfg.EstablishTicks + cfg.PenaltyExtraTicks
	var d Decision
	for i := 0; i < needTicks; i++ {
		d = machine.Update(weights, time.Unix(int64(i), 0))
		if i < needTicks-1 && d.Status == StatusEstablished {
			t.Fatalf("Penalized entry established too early at tick %d", i)
		}
	}
	if d.Status != StatusEstablished {
		t.Errorf("Expected established after %d ticks, got %s", needTicks, d.Status)
	}
}

func TestMachine_FallbackToDefaultMode(t *testing.T) {
	cfg := DefaultConfig()
	// Искусственно недостижимые входные пороги: ни один кандидат
	// не проходит, машина обязана опереться на режим по умолчанию
	for _, m := range AllModes {
		cfg.EntryThresholds[m] = 1.1
	}
	machine := NewMachine(cfg)

	d := machine.Update(weightsFor(ModeCoherent, 0.8), time.Unix(0, 0))

	if d.Mode != cfg.DefaultMode {
		t.Errorf("Expected fallback to %s, got %s", cfg.DefaultMode, d.Mode)
	}
	if d.Status != StatusProvisional {
		t.Errorf("Expected provisional fallback, got %s", d.Status)
	}
}

func TestMachine_EstablishedHoldsThroughDips(t *testing.T) {
	cfg := DefaultConfig()
	machine := NewMachine(cfg)

	for i := 0; i < 5; i++ {
		machine.Update(weightsFor(ModeRestful, 0.8), time.Unix(int64(i), 0))
	}

	// Вес упал ниже входного порога, но держится выше выходного:
	// установленный режим не сдается
	d := machine.Update(weightsFor(ModeRestful, 0.35), time.Unix(5, 0))
	if d.Mode != ModeRestful || d.Status != StatusEstablished {
		t.Errorf("Expected established %s through dip, got %s/%s", ModeRestful, d.Mode, d.Status)
	}

	// Чужой argmax без падения собственного веса тоже не выбивает режим
	mixed := Membership{
		ModeActivated:  0.40,
		ModeRestful:    0.36,
		ModeBaseline:   0.06,
		ModeCoherent:   0.06,
		ModeFocused:    0.06,
		ModeRecovering: 0.06,
	}
	d = machine.Update(mixed, time.Unix(6, 0))
	if d.Mode != ModeRestful || d.Status != StatusEstablished {
		t.Errorf("Expected established %s despite foreign argmax, got %s/%s", ModeRestful, d.Mode, d.Status)
	}
}

func TestMachine_SwitchesOnSustainedNewMode(t *testing.T) {
	cfg := DefaultConfig()
	machine := NewMachine(cfg)

	for i := 0; i < 5; i++ {
		machine.Update(weightsFor(ModeCoherent, 0.85), time.Unix(int64(i), 0))
	}

	var d Decision
	for i := 5; i < 15; i++ {
		d = machine.Update(weightsFor(ModeActivated, 0.85), time.Unix(int64(i), 0))
	}

	if d.Mode != ModeActivated {
		t.Errorf("Expected switch to %s, got %s", ModeActivated, d.Mode)
	}
	if d.Status != StatusEstablished {
		t.Errorf("Expected new mode established, got %s", d.Status)
	}
	if machine.TransitionCount() != 1 {
		t.Errorf("Expected exactly one transition, got %d", machine.TransitionCount())
	}
}

func TestMachine_RecentConfidences(t *testing.T) {
	cfg := DefaultConfig()
	machine := NewMachine(cfg)

	for i := 0; i < 10; i++ {
		machine.Update(weightsFor(ModeRecovering, 0.7+float64(i)*0.01), time.Unix(int64(i), 0))
	}

	recent := machine.RecentConfidences(4)
	if len(recent) != 4 {
		t.Fatalf("Expected 4 recent confidences, got %d", len(recent))
	}
	// От старых к новым, последняя - самая свежая
	if recent[3] < recent[0] {
		t.Errorf("Expected oldest-to-newest ordering, got %v", recent)
	}
}

func TestMachine_HistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistorySize = 100
	machine := NewMachine(cfg)

	for i := 0; i < 250; i++ {
		machine.Update(weightsFor(ModeBaseline, 0.6), time.Unix(int64(i), 0))
	}

	if len(machine.History()) != 100 {
		t.Errorf("Expected history bounded to 100, got %d", len(machine.History()))
	}
}

func TestMachine_Reset(t *testing.T) {
	machine := NewMachine(DefaultConfig())

	for i := 0; i < 5; i++ {
		machine.Update(weightsFor(ModeCoherent, 0.85), time.Unix(int64(i), 0))
	}

	machine.Reset()

	if _, status, has := machine.Current(); has || status != StatusUnknown {
		t.Errorf("Expected unknown empty machine after reset, got has=%v status=%s", has, status)
	}
	if len(machine.History()) != 0 {
		t.Errorf("Expected empty history after reset, got %d", len(machine.History()))
	}
}
