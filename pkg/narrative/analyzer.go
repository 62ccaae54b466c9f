package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lunahub/hub/internal/cacheadapter"
	"github.com/lunahub/hub/internal/telemetry"
	"github.com/lunahub/hub/pkg/energy"
	"github.com/lunahub/hub/pkg/eventstore"
)

// PlanLookup resolves a user's live subscription plan, independent of event
// history. Satisfied by *energy.Store in production.
type PlanLookup interface {
	Get(ctx context.Context, userID uuid.UUID) (energy.UserEnergy, error)
}

// Analyzer computes and caches narrative context packets.
type Analyzer struct {
	events *eventstore.Store
	energy PlanLookup
	cache  cacheadapter.Adapter
	nlp    NLPProvider
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer. nlp may be nil, in which case packets
// carry no NLPInsights.
func NewAnalyzer(events *eventstore.Store, energyStore PlanLookup, cache cacheadapter.Adapter, nlp NLPProvider, logger *slog.Logger) *Analyzer {
	return &Analyzer{events: events, energy: energyStore, cache: cache, nlp: nlp, logger: logger}
}

func cacheKey(userID uuid.UUID) string {
	return "narrative:packet:" + userID.String()
}

// Context returns the cached packet for userID if fresh, otherwise computes
// one and caches it for five minutes.
func (a *Analyzer) Context(ctx context.Context, userID uuid.UUID) (Packet, error) {
	key := cacheKey(userID)

	if cached, hit, err := a.cache.Get(ctx, key); err != nil {
		a.logger.Warn("narrative cache unavailable, computing directly", "user_id", userID, "error", err)
	} else if hit {
		var pkt Packet
		if err := json.Unmarshal([]byte(cached), &pkt); err == nil {
			telemetry.NarrativeCacheHitsTotal.WithLabelValues("hit").Inc()
			return pkt, nil
		}
		a.logger.Warn("narrative cache entry unreadable, recomputing", "user_id", userID)
	}

	telemetry.NarrativeCacheHitsTotal.WithLabelValues("miss").Inc()

	pkt, err := a.compute(ctx, userID)
	if err != nil {
		return Packet{}, err
	}

	b, err := json.Marshal(pkt)
	if err != nil {
		return Packet{}, fmt.Errorf("marshaling narrative packet: %w", err)
	}
	if err := a.cache.SetTTL(ctx, key, string(b), cacheTTL); err != nil {
		a.logger.Warn("failed to cache narrative packet", "user_id", userID, "error", err)
	}

	return pkt, nil
}

// Invalidate drops the cached packet for userID so the next Context call
// recomputes from fresh state. Its only caller is the narrative handler,
// after it appends an event; the energy ledger's consume/refund/purchase
// paths do not call it, so a packet cached before one of those mutations is
// served until its five-minute TTL expires.
func (a *Analyzer) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return a.cache.Delete(ctx, cacheKey(userID))
}

func (a *Analyzer) compute(ctx context.Context, userID uuid.UUID) (Packet, error) {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -maxFetchMultiplier*LongWindowDays)

	events, err := a.events.Query(ctx, userID, maxEventCap, "", &since)
	if err != nil {
		return Packet{}, fmt.Errorf("fetching events for narrative analysis: %w", err)
	}
	// Query returns newest-first; the analysis below reasons chronologically.
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })

	plan := "free"
	if ue, err := a.energy.Get(ctx, userID); err == nil {
		plan = ue.SubscriptionType
	} else {
		a.logger.Warn("narrative analyzer could not fetch live plan, defaulting", "user_id", userID, "error", err)
	}

	meta := computeUserMeta(events, now, plan)
	usage := computeUsagePattern(events, now)
	progress := computeProgressMetrics(events)
	doubt := extractDoubtMarker(events)

	pkt := Packet{
		UserMeta:        meta,
		UsagePattern:    usage,
		ProgressMetrics: progress,
		DoubtMarker:     doubt,
		ComputedAt:      now,
	}

	if a.nlp != nil {
		if insights, err := a.nlp.Analyze(ctx, events); err != nil {
			a.logger.Warn("narrative NLP enrichment failed, continuing without it", "user_id", userID, "error", err)
		} else {
			pkt.NLPInsights = insights
		}
	}

	pkt.Confidence = computeConfidence(events, usage, progress, now)
	return pkt, nil
}

func computeUserMeta(events []eventstore.Event, now time.Time, plan string) UserMeta {
	meta := UserMeta{Plan: plan}
	if len(events) == 0 {
		return meta
	}
	meta.AgeDays = now.Sub(events[0].CreatedAt).Hours() / 24
	meta.LastActivityHours = now.Sub(events[len(events)-1].CreatedAt).Hours()
	return meta
}

func computeUsagePattern(events []eventstore.Event, now time.Time) UsagePattern {
	shortCutoff := now.AddDate(0, 0, -ShortWindowDays)

	appSet := map[string]bool{}
	typeSet := map[string]bool{}
	var timestamps []time.Time

	for _, ev := range events {
		if ev.CreatedAt.Before(shortCutoff) {
			continue
		}
		if ev.AppSource != "" {
			appSet[ev.AppSource] = true
		}
		typeSet[ev.EventType] = true
		timestamps = append(timestamps, ev.CreatedAt)
	}

	sessions := groupSessions(timestamps, 30*time.Minute)

	var totalMinutes float64
	for _, s := range sessions {
		totalMinutes += s.end.Sub(s.start).Minutes()
	}
	avg := 0.0
	if len(sessions) > 0 {
		avg = totalMinutes / float64(len(sessions))
	}

	return UsagePattern{
		AppsTouched:       sortedKeys(appSet),
		EventTypeSample:   sortedKeys(typeSet),
		SessionCount:      len(sessions),
		AvgSessionMinutes: avg,
	}
}

type session struct {
	start, end time.Time
}

// groupSessions buckets a chronologically sorted list of timestamps into
// sessions, starting a new session whenever the gap to the previous
// timestamp exceeds gap.
func groupSessions(timestamps []time.Time, gap time.Duration) []session {
	if len(timestamps) == 0 {
		return nil
	}
	var sessions []session
	cur := session{start: timestamps[0], end: timestamps[0]}
	for _, ts := range timestamps[1:] {
		if ts.Sub(cur.end) > gap {
			sessions = append(sessions, cur)
			cur = session{start: ts, end: ts}
			continue
		}
		cur.end = ts
	}
	sessions = append(sessions, cur)
	return sessions
}

func computeProgressMetrics(events []eventstore.Event) ProgressMetrics {
	var atsScores []float64
	cvCount, letterCount := 0, 0
	targetSector := ""

	for _, ev := range events {
		switch ev.EventType {
		case eventstore.TypeCVAnalyzed:
			cvCount++
			if v, ok := ev.EventData["ats_score"]; ok {
				if f, ok := toFloat(v); ok {
					atsScores = append(atsScores, f)
				}
			}
		case eventstore.TypeLetterDrafted:
			letterCount++
			if v, ok := ev.EventData["target_sector"]; ok {
				if s, ok := v.(string); ok && s != "" {
					targetSector = s
				}
			}
		}
	}

	metrics := ProgressMetrics{
		CVCount:      cvCount,
		LetterCount:  letterCount,
		TargetSector: targetSector,
		HasATSData:   len(atsScores) > 0,
	}
	if len(atsScores) == 0 {
		return metrics
	}

	metrics.AvgATSScore = mean(atsScores)
	metrics.ATSDelta14d = halfSequenceDelta(atsScores)
	return metrics
}

// halfSequenceDelta compares the mean of the first half of a score sequence
// to the mean of the second half, expressed as a percent change.
func halfSequenceDelta(scores []float64) float64 {
	if len(scores) < 2 {
		return 0
	}
	mid := len(scores) / 2
	firstHalf := mean(scores[:mid])
	secondHalf := mean(scores[mid:])
	if firstHalf == 0 {
		return 0
	}
	return (secondHalf - firstHalf) / firstHalf * 100
}

var doubtKeywords = []string{"unsure", "doubt", "worried", "anxious", "confused", "frustrated", "overwhelmed"}

// extractDoubtMarker returns the doubt/emotion keyword found in the free-text
// payload of the most recent onboarding/feedback event that contains one, or
// "" if none does.
func extractDoubtMarker(events []eventstore.Event) string {
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.EventType != eventstore.TypeOnboardingFeedback {
			continue
		}
		text, _ := ev.EventData["text"].(string)
		lower := strings.ToLower(text)
		for _, kw := range doubtKeywords {
			if strings.Contains(lower, kw) {
				return kw
			}
		}
	}
	return ""
}

// computeConfidence is the mean of four factors: event count saturation
// (reaches 1 at 20+ events), recency (1 at 0h since last activity, decaying
// to 0.2 after a week), app diversity (1 at 3+ distinct apps), and ATS data
// availability (0.8 if present, 0.3 otherwise).
func computeConfidence(events []eventstore.Event, usage UsagePattern, progress ProgressMetrics, now time.Time) float64 {
	eventFactor := math.Min(1, float64(len(events))/20)

	recencyFactor := 0.2
	if len(events) > 0 {
		hoursSince := now.Sub(events[len(events)-1].CreatedAt).Hours()
		weekHours := 7 * 24.0
		recencyFactor = math.Max(0.2, 1-hoursSince/weekHours)
	}

	diversityFactor := math.Min(1, float64(len(usage.AppsTouched))/3)

	atsFactor := 0.3
	if progress.HasATSData {
		atsFactor = 0.8
	}

	return (eventFactor + recencyFactor + diversityFactor + atsFactor) / 4
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
