package narrative

import (
	"context"

	"github.com/lunahub/hub/pkg/eventstore"
)

// NLPProvider enriches a packet with optional natural-language signals
// (themes, sentiment polarity, career indicators) derived from free-text
// event payloads. No NLP SDK is wired into this module; callers that want
// real enrichment provide their own implementation. A nil NLPProvider is a
// valid Analyzer configuration and simply omits NLPInsights.
type NLPProvider interface {
	Analyze(ctx context.Context, events []eventstore.Event) (*NLPInsights, error)
}

// NoopNLPProvider always returns no insights without error, useful as an
// explicit placeholder in configurations that haven't wired a real provider.
type NoopNLPProvider struct{}

// Analyze implements NLPProvider.
func (NoopNLPProvider) Analyze(ctx context.Context, events []eventstore.Event) (*NLPInsights, error) {
	return nil, nil
}
