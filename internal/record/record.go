// Package record определяет выходную границу вычислительного ядра:
// одну запись на тик. Все потребители (хранилище, доставка, реплей)
// зависят от этого типа, и никогда наоборот.
package record

import "time"

// SchemaVersion - версия схемы записи. Добавление полей обратно
// совместимо; переименование поля требует поднятия версии.
const SchemaVersion = "1.0"

// Record - составная запись одного тика пайплайна
type Record struct {
	SchemaVersion string    `json:"schema_version"`
	SessionID     string    `json:"session_id"`
	TS            time.Time `json:"ts"`

	// Контекст пульса от устройства; транзитное поле, ядром не вычисляется
	HRContext *float64 `json:"hr_context,omitempty"`

	Metrics Metrics `json:"metrics"`
	Phase   Phase   `json:"phase"`
	Mode    ModeRef `json:"mode"`
}

// Metrics - HRV-признаки одного тика
type Metrics struct {
	Amp                   float64  `json:"amp"`
	RhythmicCouplingScore float64  `json:"rhythmic_coupling_score"`
	RhythmicCouplingLabel string   `json:"rhythmic_coupling_label"`
	BreathRate            *float64 `json:"breath_rate,omitempty"`
	BreathSteady          bool     `json:"breath_steady"`
	Volatility            float64  `json:"volatility"`

	// Скаляр одного тика; не является оценкой интегральности траектории
	// (та живет в phase.trajectory_integrity)
	LegacyTrendScore float64 `json:"legacy_trend_score"`
	LegacyTrendLabel string  `json:"legacy_trend_label"`
}

// Phase - кинематика траектории за тик
type Phase struct {
	Position              [3]float64 `json:"position"`
	Velocity              [3]float64 `json:"velocity"`
	VelocityMag           float64    `json:"velocity_mag"`
	AccelerationMagnitude float64    `json:"acceleration_magnitude"`
	Stability             float64    `json:"stability"`
	TrajectoryIntegrity   float64    `json:"trajectory_integrity"`
	WindowedPathSignature float64    `json:"windowed_path_signature"`
	PhaseLabel            string     `json:"phase_label"`
}

// ModeRef - результат классификации режима за тик
type ModeRef struct {
	Membership         map[string]float64 `json:"membership"`
	PrimaryMode        string             `json:"primary_mode"`
	Status             string             `json:"status"`
	DwellTimeSec       float64            `json:"dwell_time"`
	MovementAnnotation string             `json:"movement_annotation"`
	ComposedLabel      string             `json:"composed_label"`
}
