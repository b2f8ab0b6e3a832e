package scaler

import (
	"testing"
	"time"
)

// manualClock is an in-memory Clock an individual test can advance by hand;
// cooldown correctness depends on a monotonic, injected clock shared by the
// rule and its loop.
type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }
func (c *manualClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func baseSpec() ScaleSpec {
	return ScaleSpec{
		ClusterID:     "cluster-1",
		SkuID:         "sku-1",
		MinSize:       1,
		MaxSize:       10,
		MinIdleToKeep: 2,
		MaxIdleToKeep: 4,
		CoolDownSecs:  60,
	}
}

func TestScaleRule_ScaleUpFromZeroIdle(t *testing.T) {
	// scale up from zero idle instances.
	clock := &manualClock{now: time.Unix(1000, 0)}
	rule := NewScaleRule(baseSpec(), clock)

	decision, ok := rule.Apply(UsageByMachineDefinition{TotalCount: 5, IdleCount: 0})
	if !ok {
		t.Fatalf("expected a decision")
	}
	if decision.Type != ScaleUp {
		t.Errorf("type = %v, want ScaleUp", decision.Type)
	}
	if decision.DesireSize != 7 {
		t.Errorf("desireSize = %d, want 7", decision.DesireSize)
	}
}

func TestScaleRule_ScaleUpSaturated(t *testing.T) {
	// scale up saturated at maxSize.
	clock := &manualClock{now: time.Unix(1000, 0)}
	rule := NewScaleRule(baseSpec(), clock)

	decision, ok := rule.Apply(UsageByMachineDefinition{TotalCount: 10, IdleCount: 0})
	if !ok {
		t.Fatalf("expected a decision")
	}
	if decision.Type != NoOpReachMax {
		t.Errorf("type = %v, want NoOpReachMax", decision.Type)
	}
	if decision.DesireSize != 10 {
		t.Errorf("desireSize = %d, want 10", decision.DesireSize)
	}
}

func TestScaleRule_ScaleDownTwoPhase(t *testing.T) {
	// two-phase scale down.
	clock := &manualClock{now: time.Unix(1000, 0)}
	rule := NewScaleRule(baseSpec(), clock)

	decision, ok := rule.Apply(UsageByMachineDefinition{TotalCount: 10, IdleCount: 7})
	if !ok {
		t.Fatalf("expected a decision")
	}
	if decision.Type != ScaleDown {
		t.Errorf("type = %v, want ScaleDown", decision.Type)
	}
	if decision.DesireSize != 7 {
		t.Errorf("desireSize = %d, want 7", decision.DesireSize)
	}
}

func TestScaleRule_CooldownSuppression(t *testing.T) {
	// cooldown suppresses a second decision.
	clock := &manualClock{now: time.Unix(1000, 0)}
	rule := NewScaleRule(baseSpec(), clock)

	if _, ok := rule.Apply(UsageByMachineDefinition{TotalCount: 5, IdleCount: 0}); !ok {
		t.Fatalf("expected first decision")
	}

	clock.advance(30 * time.Second)
	if _, ok := rule.Apply(UsageByMachineDefinition{TotalCount: 7, IdleCount: 0}); ok {
		t.Errorf("expected cooldown suppression, got a decision")
	}
}

func TestScaleRule_CooldownChargedOnNoOp(t *testing.T) {
	// Cooldown is charged even when no decision is produced — a usage
	// inside the idle window still consumes the cooldown window.
	clock := &manualClock{now: time.Unix(1000, 0)}
	rule := NewScaleRule(baseSpec(), clock)

	if _, ok := rule.Apply(UsageByMachineDefinition{TotalCount: 5, IdleCount: 3}); ok {
		t.Fatalf("expected no decision for in-window usage")
	}

	clock.advance(1 * time.Second)
	if _, ok := rule.Apply(UsageByMachineDefinition{TotalCount: 5, IdleCount: 0}); ok {
		t.Errorf("expected cooldown suppression after a no-op evaluation")
	}
}

func TestScaleRule_BoundaryIdleEqualsMaxIdleToKeep(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	rule := NewScaleRule(baseSpec(), clock)

	if _, ok := rule.Apply(UsageByMachineDefinition{TotalCount: 5, IdleCount: 4}); ok {
		t.Errorf("idleCount == maxIdleToKeep must not trigger a decision")
	}
}

func TestScaleRule_BoundaryIdleEqualsMinIdleToKeep(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	rule := NewScaleRule(baseSpec(), clock)

	if _, ok := rule.Apply(UsageByMachineDefinition{TotalCount: 5, IdleCount: 2}); ok {
		t.Errorf("idleCount == minIdleToKeep must not trigger a decision")
	}
}

func TestScaleRule_ScaleDownPinnedAtMinSize(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	spec := baseSpec()
	spec.MinSize = 5
	rule := NewScaleRule(spec, clock)

	decision, ok := rule.Apply(UsageByMachineDefinition{TotalCount: 5, IdleCount: 5})
	if !ok {
		t.Fatalf("expected a decision")
	}
	if decision.Type != NoOpReachMin {
		t.Errorf("type = %v, want NoOpReachMin", decision.Type)
	}
	if decision.DesireSize != 5 {
		t.Errorf("desireSize = %d, want 5", decision.DesireSize)
	}
}

func TestScaleRule_ScaleUpPinnedAtMaxSize(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	spec := baseSpec()
	spec.MaxSize = 5
	rule := NewScaleRule(spec, clock)

	decision, ok := rule.Apply(UsageByMachineDefinition{TotalCount: 5, IdleCount: 0})
	if !ok {
		t.Fatalf("expected a decision")
	}
	if decision.Type != NoOpReachMax {
		t.Errorf("type = %v, want NoOpReachMax", decision.Type)
	}
	if decision.DesireSize != 5 {
		t.Errorf("desireSize = %d, want 5", decision.DesireSize)
	}
}

func TestScaleRule_ScaleUpFromZeroTotalRequiresMinIdle(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	spec := baseSpec()
	spec.MinIdleToKeep = 0
	rule := NewScaleRule(spec, clock)

	if _, ok := rule.Apply(UsageByMachineDefinition{TotalCount: 0, IdleCount: 0}); ok {
		t.Errorf("minIdleToKeep=0 with zero usage must not scale up")
	}
}

func TestScaleRule_MinEqualsMaxAlwaysNoOp(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	spec := baseSpec()
	spec.MinSize = 5
	spec.MaxSize = 5
	rule := NewScaleRule(spec, clock)

	decision, ok := rule.Apply(UsageByMachineDefinition{TotalCount: 5, IdleCount: 0})
	if !ok {
		t.Fatalf("expected a decision")
	}
	if decision.Type != NoOpReachMax {
		t.Errorf("type = %v, want NoOpReachMax", decision.Type)
	}

	clock.advance(time.Duration(spec.CoolDownSecs) * time.Second)
	decision, ok = rule.Apply(UsageByMachineDefinition{TotalCount: 5, IdleCount: 10})
	if !ok {
		t.Fatalf("expected a decision")
	}
	if decision.Type != NoOpReachMin {
		t.Errorf("type = %v, want NoOpReachMin", decision.Type)
	}
}

func TestScaleRule_DecisionWithinBounds(t *testing.T) {
	// minSize <= desireSize <= maxSize of the controlling ScaleSpec for
	// every decision produced.
	clock := &manualClock{now: time.Unix(1000, 0)}
	spec := baseSpec()
	rule := NewScaleRule(spec, clock)

	cases := []UsageByMachineDefinition{
		{TotalCount: 5, IdleCount: 0},
		{TotalCount: 10, IdleCount: 7},
	}
	for i, usage := range cases {
		clock.advance(time.Duration(spec.CoolDownSecs) * time.Second)
		decision, ok := rule.Apply(usage)
		if !ok {
			t.Fatalf("case %d: expected a decision", i)
		}
		if decision.DesireSize < spec.MinSize || decision.DesireSize > spec.MaxSize {
			t.Errorf("case %d: desireSize %d out of bounds [%d,%d]", i, decision.DesireSize, spec.MinSize, spec.MaxSize)
		}
	}
}
