package ingest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/somalab/autonomic-monitory/internal/pipeline"
	"github.com/somalab/autonomic-monitory/internal/session"
)

func newTestHandler(t *testing.T) (*Handler, *session.Manager, string) {
	t.Helper()
	store := session.NewMemoryStore()
	settings := pipeline.DefaultSettings()
	settings.TickInterval = time.Hour
	manager := session.NewManager(store, store, settings)

	s, err := manager.CreateSession(context.Background(), &session.CreateSessionRequest{})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	t.Cleanup(func() { manager.StopAll(context.Background()) })

	return NewHandler(DefaultConfig(), manager), manager, s.ID
}

func TestValidateSample(t *testing.T) {
	h, _, _ := newTestHandler(t)

	nan := math.NaN()
	inf := math.Inf(1)
	hr := 72.0

	cases := []struct {
		name    string
		msg     SampleMessage
		wantErr bool
	}{
		{"valid", SampleMessage{IntervalMS: 800, TsMS: 1000, HR: &hr}, false},
		{"valid without hr", SampleMessage{IntervalMS: 800, TsMS: 1000}, false},
		{"at lower bound", SampleMessage{IntervalMS: 250, TsMS: 1000}, false},
		{"at upper bound", SampleMessage{IntervalMS: 3000, TsMS: 1000}, false},
		{"below range", SampleMessage{IntervalMS: 100, TsMS: 1000}, true},
		{"above range", SampleMessage{IntervalMS: 5000, TsMS: 1000}, true},
		{"zero interval", SampleMessage{IntervalMS: 0, TsMS: 1000}, true},
		{"zero timestamp", SampleMessage{IntervalMS: 800, TsMS: 0}, true},
		{"negative timestamp", SampleMessage{IntervalMS: 800, TsMS: -5}, true},
		{"nan hr", SampleMessage{IntervalMS: 800, TsMS: 1000, HR: &nan}, true},
		{"inf hr", SampleMessage{IntervalMS: 800, TsMS: 1000, HR: &inf}, true},
	}

	for _, tc := range cases {
		err := h.validateSample(tc.msg)
		if tc.wantErr && err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestAcceptSample_Counters(t *testing.T) {
	h, _, sessionID := newTestHandler(t)

	base := time.Now().UnixMilli()

	if err := h.acceptSample(sessionID, SampleMessage{IntervalMS: 800, TsMS: base}); err != nil {
		t.Fatalf("Expected sample accepted: %v", err)
	}
	// Тот же ts_ms - нарушение порядка, считается отдельно от брака
	if err := h.acceptSample(sessionID, SampleMessage{IntervalMS: 800, TsMS: base}); err == nil {
		t.Fatal("Expected out-of-order rejection")
	}
	// Интервал вне физиологических пределов - брак
	if err := h.acceptSample(sessionID, SampleMessage{IntervalMS: 50, TsMS: base + 1000}); err == nil {
		t.Fatal("Expected validation rejection")
	}

	_, dropped, outOfOrder := h.GetStats()
	if dropped != 1 {
		t.Errorf("Expected 1 dropped sample, got %d", dropped)
	}
	if outOfOrder != 1 {
		t.Errorf("Expected 1 out-of-order sample, got %d", outOfOrder)
	}
}

func TestAcceptSample_UnknownSession(t *testing.T) {
	h, _, _ := newTestHandler(t)

	err := h.acceptSample("missing", SampleMessage{IntervalMS: 800, TsMS: time.Now().UnixMilli()})
	if err == nil {
		t.Fatal("Expected error for unknown session")
	}
}
