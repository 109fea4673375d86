package scheduler

import "testing"

func TestDeriveBudgetsTenGbpsTenConnectionsPerVIP(t *testing.T) {
	b := DeriveBudgets(10, 10, 0)
	if b.MaxActiveConnections != 20 {
		t.Errorf("MaxActiveConnections = %d, want 20", b.MaxActiveConnections)
	}
	if b.MaxRequestsInFlight != 40 {
		t.Errorf("MaxRequestsInFlight = %d, want 40", b.MaxRequestsInFlight)
	}
	if b.MaxRequestsPrepare != 20 {
		t.Errorf("MaxRequestsPrepare = %d, want 20", b.MaxRequestsPrepare)
	}
}

func TestDeriveBudgetsOverrideCaps(t *testing.T) {
	b := DeriveBudgets(10, 10, 5)
	if b.MaxActiveConnections != 5 {
		t.Errorf("MaxActiveConnections = %d, want 5 (override should cap below the derived value)", b.MaxActiveConnections)
	}
	if b.MaxRequestsInFlight != 10 {
		t.Errorf("MaxRequestsInFlight = %d, want 10", b.MaxRequestsInFlight)
	}
}

func TestDeriveBudgetsOverrideAboveDerivedIsIgnored(t *testing.T) {
	b := DeriveBudgets(10, 10, 1000)
	if b.MaxActiveConnections != 20 {
		t.Errorf("MaxActiveConnections = %d, want 20 (override above the derived value should not apply)", b.MaxActiveConnections)
	}
}

func TestDeriveBudgetsFloorsAtOne(t *testing.T) {
	b := DeriveBudgets(0, 0, 0)
	if b.MaxActiveConnections < 1 {
		t.Errorf("MaxActiveConnections = %d, want at least 1", b.MaxActiveConnections)
	}
	if b.MaxRequestsPrepare < 1 {
		t.Errorf("MaxRequestsPrepare = %d, want at least 1", b.MaxRequestsPrepare)
	}
}
