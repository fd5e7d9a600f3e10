package classifier

import (
	"math"
	"testing"

	"github.com/somalab/autonomic-monitory/internal/features"
)

func TestComputeMembership_SumsToOne(t *testing.T) {
	cfg := DefaultConfig()

	vectors := []FeatureVector{
		{0, 0, 0, 0},
		{1, 1, 1, 1},
		{0.85, 1, 0.70, 0.80},
		{0.33, 0, 0.12, 0.91},
		{0.5, 1, 0.5, 0.5},
	}

	for _, v := range vectors {
		m := ComputeMembership(v, cfg)
		if len(m) != len(AllModes) {
			t.Fatalf("Expected weight for every mode, got %d entries", len(m))
		}
		sum := 0.0
		for _, w := range m {
			if w < 0 || w > 1 {
				t.Errorf("Weight out of [0,1] for %v: %f", v, w)
			}
			sum += w
		}
		if math.Abs(sum-1.0) > 1e-9 {
			t.Errorf("Weights for %v sum to %f, want 1.0", v, sum)
		}
	}
}

// TestDefaultConfig_Valid проверяет, что конфигурация по умолчанию
// согласована и каждый режим достижим из собственного центроида
func TestDefaultConfig_Valid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("Default config must validate: %v", err)
	}
}

func TestMembership_OwnCentroidDominates(t *testing.T) {
	cfg := DefaultConfig()

	for _, mode := range AllModes {
		m := ComputeMembership(FeatureVector(cfg.Centroids[mode]), cfg)

		best, w := m.ArgMax()
		if best != mode {
			t.Errorf("ArgMax at centroid of %s = %s", mode, best)
		}
		// Вес в собственном центроиде обязан проходить входной порог,
		// иначе режим структурно недостижим
		if w <= cfg.EntryThresholds[mode] {
			t.Errorf("Mode %s: weight at own centroid %f does not clear entry threshold %f",
				mode, w, cfg.EntryThresholds[mode])
		}
	}
}

func TestVectorFromSnapshot(t *testing.T) {
	snap := features.Snapshot{
		CouplingScore: 0.7,
		BreathSteady:  true,
		AmplitudeNorm: 0.4,
		Volatility:    0.3,
	}

	v := VectorFromSnapshot(snap)
	want := FeatureVector{0.7, 1, 0.4, 0.7}
	for i := range want {
		if math.Abs(v[i]-want[i]) > 1e-9 {
			t.Errorf("Axis %d = %f, want %f", i, v[i], want[i])
		}
	}

	snap.BreathSteady = false
	if v := VectorFromSnapshot(snap); v[1] != 0 {
		t.Errorf("Expected binary 0 for unsteady breath, got %f", v[1])
	}
}

func TestValidate_RejectsBrokenConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero temperature", func(c *Config) { c.Temperature = 0 }},
		{"entry below exit", func(c *Config) {
			c.EntryThresholds[ModeCoherent] = 0.2
		}},
		{"exit below uniform", func(c *Config) {
			c.EntryThresholds[ModeRestful] = 0.2
			c.ExitThresholds[ModeRestful] = 0.1
		}},
		// Центроид на середине бинарной оси дыхания недостижим:
		// ни один реальный вектор не подойдет к нему вплотную
		{"breath centroid off the binary axis", func(c *Config) {
			cent := c.Centroids[ModeRestful]
			cent[1] = 0.5
			c.Centroids[ModeRestful] = cent
		}},
		{"centroid out of range", func(c *Config) {
			cent := c.Centroids[ModeActivated]
			cent[0] = 1.5
			c.Centroids[ModeActivated] = cent
		}},
		{"missing centroid", func(c *Config) {
			delete(c.Centroids, ModeFocused)
		}},
		{"unreachable thresholds", func(c *Config) {
			for _, m := range AllModes {
				c.EntryThresholds[m] = 0.99
			}
		}},
	}

	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestArgMax_StableTieBreak(t *testing.T) {
	m := make(Membership, len(AllModes))
	for _, mode := range AllModes {
		m[mode] = 1.0 / float64(len(AllModes))
	}

	// При равных весах выигрывает более ранний режим стабильного порядка
	best, _ := m.ArgMax()
	if best != AllModes[0] {
		t.Errorf("Expected %s on tie, got %s", AllModes[0], best)
	}
}
