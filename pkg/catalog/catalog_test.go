package catalog

import "testing"

func TestActionCatalogLookup(t *testing.T) {
	c := newActionCatalog([]Action{
		{Name: "analyse_cv_complete", EnergyCost: 25, RefundEligible: true},
		{Name: "login_succeeded", EnergyCost: 0},
	})

	a, ok := c.Lookup("analyse_cv_complete")
	if !ok || a.EnergyCost != 25 || a.IsFree() {
		t.Fatalf("unexpected action entry: %+v ok=%v", a, ok)
	}

	free, ok := c.Lookup("login_succeeded")
	if !ok || !free.IsFree() {
		t.Fatalf("expected free action, got %+v", free)
	}

	if _, ok := c.Lookup("unknown_action"); ok {
		t.Fatalf("expected unknown action to miss")
	}
}
