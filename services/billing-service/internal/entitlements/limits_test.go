package entitlements

import "testing"

func TestLimitsForTier(t *testing.T) {
	free := LimitsForTier("free")
	if free.Tier != "free" || free.MaxMonthlyAppointments != 200 {
		t.Fatalf("unexpected free limits: %+v", free)
	}

	// Unknown tiers fall back to free.
	if got := LimitsForTier("enterprise"); got != free {
		t.Fatalf("unknown tier should map to free, got %+v", got)
	}

	pro := LimitsForTier("pro")
	if pro.MaxMonthlyAppointments <= LimitsForTier("starter").MaxMonthlyAppointments {
		t.Fatal("pro should allow more monthly appointments than starter")
	}
}
