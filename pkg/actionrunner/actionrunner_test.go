package actionrunner

import (
	"context"
	"testing"
)

func TestEchoProducerReturnsPayload(t *testing.T) {
	req := Request{UserID: "user-1", ActionName: "cv_analysis", Payload: map[string]any{"foo": "bar"}}

	result, err := EchoProducer{}.Produce(context.Background(), req)
	if err != nil {
		t.Fatalf("Produce() error = %v", err)
	}
	if !result.Succeeded {
		t.Error("expected Succeeded true")
	}
	if result.Output["foo"] != "bar" {
		t.Errorf("Output = %+v, want payload echoed back", result.Output)
	}
}

func TestEchoProducerRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := EchoProducer{}.Produce(ctx, Request{})
	if err == nil {
		t.Fatal("expected error for an already-cancelled context")
	}
}

func TestEchoProducerRecordsDuration(t *testing.T) {
	result, err := EchoProducer{}.Produce(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Produce() error = %v", err)
	}
	if result.Duration < 0 {
		t.Errorf("Duration = %v, want >= 0", result.Duration)
	}
}
