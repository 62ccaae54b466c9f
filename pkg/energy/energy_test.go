package energy

import "testing"

func TestUserEnergyPercentage(t *testing.T) {
	tests := []struct {
		name string
		u    UserEnergy
		want float64
	}{
		{"half", UserEnergy{CurrentEnergy: 25, MaxEnergy: 50}, 0.5},
		{"zero max", UserEnergy{CurrentEnergy: 10, MaxEnergy: 0}, 1},
		{"unlimited", UserEnergy{CurrentEnergy: 100, MaxEnergy: MaxEnergySentinel, SubscriptionType: PlanUnlimited}, 1},
		{"clamped over", UserEnergy{CurrentEnergy: 60, MaxEnergy: 50}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.u.Percentage(); got != tt.want {
				t.Errorf("Percentage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserEnergyIsUnlimited(t *testing.T) {
	u := UserEnergy{SubscriptionType: PlanUnlimited}
	if !u.IsUnlimited() {
		t.Fatalf("expected unlimited")
	}
	f := UserEnergy{SubscriptionType: PlanFree}
	if f.IsUnlimited() {
		t.Fatalf("expected not unlimited")
	}
}
