package eventstore

import (
	"strings"
	"testing"

	"github.com/lunahub/hub/internal/apierr"
)

func TestValidateEvent(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		appSource string
		data      map[string]any
		wantErr   bool
	}{
		{
			name:      "valid event",
			eventType: TypeEnergyActionPerformed,
			appSource: "cv",
			data:      map[string]any{"energy_cost": 25},
		},
		{
			name:    "missing event type",
			appSource: "cv",
			wantErr: true,
		},
		{
			name:      "missing app source",
			eventType: TypeEnergyActionPerformed,
			wantErr:   true,
		},
		{
			name:      "oversized event data",
			eventType: TypeEnergyActionPerformed,
			appSource: "cv",
			data:      map[string]any{"blob": strings.Repeat("x", MaxEventDataBytes+1)},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateEvent(tt.eventType, tt.appSource, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && apierr.CodeOf(err) != apierr.CodeInvalidEvent {
				t.Errorf("expected CodeInvalidEvent, got %v", apierr.CodeOf(err))
			}
		})
	}
}
