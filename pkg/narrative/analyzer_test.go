package narrative

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lunahub/hub/pkg/eventstore"
)

func mkEvent(eventType string, at time.Time, data map[string]any) eventstore.Event {
	return eventstore.Event{
		EventID:   uuid.New(),
		EventType: eventType,
		AppSource: "aube",
		EventData: data,
		CreatedAt: at,
	}
}

func TestComputeProgressMetrics(t *testing.T) {
	now := time.Now()
	events := []eventstore.Event{
		mkEvent(eventstore.TypeCVAnalyzed, now.Add(-10*24*time.Hour), map[string]any{"ats_score": 50.0}),
		mkEvent(eventstore.TypeCVAnalyzed, now.Add(-5*24*time.Hour), map[string]any{"ats_score": 60.0}),
		mkEvent(eventstore.TypeCVAnalyzed, now.Add(-1*24*time.Hour), map[string]any{"ats_score": 80.0}),
		mkEvent(eventstore.TypeLetterDrafted, now.Add(-2*24*time.Hour), map[string]any{"target_sector": "fintech"}),
	}

	progress := computeProgressMetrics(events)
	if progress.CVCount != 3 {
		t.Errorf("CVCount = %d, want 3", progress.CVCount)
	}
	if progress.LetterCount != 1 {
		t.Errorf("LetterCount = %d, want 1", progress.LetterCount)
	}
	if progress.TargetSector != "fintech" {
		t.Errorf("TargetSector = %q, want %q", progress.TargetSector, "fintech")
	}
	if !progress.HasATSData {
		t.Error("expected HasATSData true")
	}
	wantAvg := (50.0 + 60.0 + 80.0) / 3
	if progress.AvgATSScore != wantAvg {
		t.Errorf("AvgATSScore = %v, want %v", progress.AvgATSScore, wantAvg)
	}
	// First half [50], second half [60, 80] -> mean 70, delta from 50 is +40%.
	if got, want := progress.ATSDelta14d, 40.0; got != want {
		t.Errorf("ATSDelta14d = %v, want %v", got, want)
	}
}

func TestComputeProgressMetricsNoATSData(t *testing.T) {
	progress := computeProgressMetrics(nil)
	if progress.HasATSData {
		t.Error("expected HasATSData false with no events")
	}
	if progress.AvgATSScore != 0 {
		t.Errorf("AvgATSScore = %v, want 0", progress.AvgATSScore)
	}
}

func TestExtractDoubtMarker(t *testing.T) {
	now := time.Now()
	events := []eventstore.Event{
		mkEvent(eventstore.TypeOnboardingFeedback, now.Add(-2*time.Hour), map[string]any{"text": "feeling good about this"}),
		mkEvent(eventstore.TypeOnboardingFeedback, now.Add(-1*time.Hour), map[string]any{"text": "I'm a bit worried about my interview"}),
	}
	got := extractDoubtMarker(events)
	if got != "worried" {
		t.Errorf("extractDoubtMarker() = %q, want %q", got, "worried")
	}
}

func TestExtractDoubtMarkerNoMatch(t *testing.T) {
	events := []eventstore.Event{
		mkEvent(eventstore.TypeOnboardingFeedback, time.Now(), map[string]any{"text": "all good here"}),
	}
	if got := extractDoubtMarker(events); got != "" {
		t.Errorf("extractDoubtMarker() = %q, want empty", got)
	}
}

func TestGroupSessions(t *testing.T) {
	base := time.Now()
	timestamps := []time.Time{
		base,
		base.Add(5 * time.Minute),
		base.Add(10 * time.Minute),
		base.Add(50 * time.Minute), // gap > 30min starts a new session
		base.Add(55 * time.Minute),
	}

	sessions := groupSessions(timestamps, 30*time.Minute)
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}
	if !sessions[0].start.Equal(base) || !sessions[0].end.Equal(base.Add(10*time.Minute)) {
		t.Errorf("first session = %+v, unexpected bounds", sessions[0])
	}
}

func TestComputeConfidenceBounds(t *testing.T) {
	now := time.Now()
	var events []eventstore.Event
	for i := 0; i < 25; i++ {
		events = append(events, mkEvent("app_opened", now.Add(-time.Duration(i)*time.Minute), nil))
	}
	usage := UsagePattern{AppsTouched: []string{"aube", "cv", "letters"}}
	progress := ProgressMetrics{HasATSData: true}

	confidence := computeConfidence(events, usage, progress, now)
	if confidence <= 0 || confidence > 1 {
		t.Errorf("confidence = %v, want in (0, 1]", confidence)
	}
	// Saturated event count, full app diversity, recent activity, ATS data present
	// should all push the score high.
	if confidence < 0.9 {
		t.Errorf("confidence = %v, want >= 0.9 for a saturated profile", confidence)
	}
}

func TestComputeConfidenceEmptyHistory(t *testing.T) {
	confidence := computeConfidence(nil, UsagePattern{}, ProgressMetrics{}, time.Now())
	if confidence <= 0 {
		t.Errorf("confidence = %v, want > 0 even with no history", confidence)
	}
}
