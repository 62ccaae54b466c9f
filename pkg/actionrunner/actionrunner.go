// Package actionrunner models the external action execution step of the
// metered action pipeline (the LLM call or analysis a satellite performs
// once rate limiting, authentication, and the energy precheck have all
// passed). No LLM gateway SDK appears in the retrieval pack for this
// concern, so ActionProducer is a narrow interface with only an in-memory
// stub wired in.
package actionrunner

import (
	"context"
	"time"
)

// Request describes one metered action about to be executed.
type Request struct {
	UserID     string
	ActionName string
	AppSource  string
	Payload    map[string]any
}

// Result is what an ActionProducer returns on success.
type Result struct {
	Output    map[string]any
	Duration  time.Duration
	Succeeded bool
}

// ActionProducer executes the external action behind a metered request.
// Implementations are expected to honor ctx's deadline; the orchestration
// layer derives one from the inbound request's remaining lifetime.
type ActionProducer interface {
	Produce(ctx context.Context, req Request) (Result, error)
}

// EchoProducer is a stub ActionProducer that returns the request payload
// unchanged, standing in for a real LLM gateway or analysis service.
type EchoProducer struct{}

// Produce implements ActionProducer.
func (EchoProducer) Produce(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}
	return Result{
		Output:    req.Payload,
		Duration:  time.Since(start),
		Succeeded: true,
	}, nil
}
