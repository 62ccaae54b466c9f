// Package narrative implements the Narrative Analyzer: it derives a bounded,
// structured context packet from a user's event log for injection into
// downstream LLM prompts and UI, cached per user and invalidated when the
// narrative handler appends an event, grounded on an aggregation-query style
// and the cache adapter's read-through-cache idiom.
package narrative

import "time"

// Time windows used by the analyzer, in days.
const (
	ShortWindowDays = 7
	MidWindowDays   = 14
	LongWindowDays  = 90
)

// maxFetchMultiplier and maxEventCap bound how many events the long-window
// query may return, independent of how large the window itself is.
const (
	maxFetchMultiplier = 5
	maxEventCap        = 500
)

// cacheTTL is how long a computed packet is reused before recomputation.
const cacheTTL = 5 * time.Minute

// UserMeta summarizes account-level facts independent of recent activity.
type UserMeta struct {
	AgeDays           float64 `json:"age_days"`
	LastActivityHours float64 `json:"last_activity_hours"`
	Plan              string  `json:"plan"`
}

// UsagePattern summarizes how the user has interacted with the product
// recently.
type UsagePattern struct {
	AppsTouched       []string `json:"apps_touched"`
	EventTypeSample   []string `json:"event_type_sample"`
	SessionCount      int      `json:"session_count"`
	AvgSessionMinutes float64  `json:"avg_session_minutes"`
}

// ProgressMetrics summarizes job-search progress signals drawn from CV and
// cover-letter events.
type ProgressMetrics struct {
	AvgATSScore  float64 `json:"avg_ats_score"`
	ATSDelta14d  float64 `json:"ats_delta_14d"`
	CVCount      int     `json:"cv_count"`
	LetterCount  int     `json:"letter_count"`
	TargetSector string  `json:"target_sector,omitempty"`
	HasATSData   bool    `json:"has_ats_data"`
}

// NLPInsights carries optional, best-effort natural-language signals.
// Absence of this data never fails packet computation.
type NLPInsights struct {
	Themes            []string `json:"themes,omitempty"`
	SentimentPolarity float64  `json:"sentiment_polarity,omitempty"`
	CareerIndicators  []string `json:"career_indicators,omitempty"`
}

// Packet is the immutable context packet computed for one user at one point
// in time.
type Packet struct {
	UserMeta        UserMeta        `json:"user_meta"`
	UsagePattern    UsagePattern    `json:"usage_pattern"`
	ProgressMetrics ProgressMetrics `json:"progress_metrics"`
	DoubtMarker     string          `json:"doubt_marker,omitempty"`
	NLPInsights     *NLPInsights    `json:"nlp_insights,omitempty"`
	Confidence      float64         `json:"confidence"`
	ComputedAt      time.Time       `json:"computed_at"`
}
