package scaler

import (
	"sync"
	"time"
)

// ScaleRule wraps a ScaleSpec with the mutable cooldown clock the source
// calls lastActionInstant. It is owned exclusively by one RuleRegistry
// entry; apply is only ever called from the ScalerLoop's serialized inbox,
// but the mutex guards against external snapshot reads racing a mutation.
type ScaleRule struct {
	spec  ScaleSpec
	clock Clock

	mu                sync.Mutex
	lastActionInstant time.Time
}

// NewScaleRule creates a fresh rule with cooldown initialized to -infinity,
// so the first evaluation always passes the cooldown gate.
func NewScaleRule(spec ScaleSpec, clock Clock) *ScaleRule {
	return &ScaleRule{
		spec:              spec,
		clock:             clock,
		lastActionInstant: time.Time{},
	}
}

// Spec returns the rule's current ScaleSpec.
func (r *ScaleRule) Spec() ScaleSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spec
}

// updateSpec replaces the controlling ScaleSpec in place, preserving
// lastActionInstant. Used by RuleRegistry.replace when a fetch reports an
// updated spec for an already-known SKU.
func (r *ScaleRule) updateSpec(spec ScaleSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spec = spec
}

// Apply evaluates one usage snapshot against the rule's cooldown and
// bounds, returning a decision or ok=false when no action is warranted.
//
// Cooldown is charged on every evaluation that passes the gate, even one
// that yields no decision below — this throttles churn of saturated rules
// against a chattier usage feed. See the Open Questions in DESIGN.md: this
// is the source's actual behavior, not a bug we are asked to fix.
func (r *ScaleRule) Apply(usage UsageByMachineDefinition) (ScaleDecision, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if r.lastActionInstant.Add(time.Duration(r.spec.CoolDownSecs) * time.Second).After(now) {
		return ScaleDecision{}, false
	}
	r.lastActionInstant = now

	spec := r.spec
	switch {
	case usage.IdleCount > spec.MaxIdleToKeep:
		step := usage.IdleCount - spec.MaxIdleToKeep
		newSize := max(usage.TotalCount-step, spec.MinSize)
		t := ScaleDown
		if newSize == usage.TotalCount {
			t = NoOpReachMin
		}
		return ScaleDecision{
			SkuID:      spec.SkuID,
			ClusterID:  spec.ClusterID,
			DesireSize: newSize,
			MinSize:    newSize,
			MaxSize:    newSize,
			Type:       t,
		}, true

	case usage.IdleCount < spec.MinIdleToKeep:
		step := spec.MinIdleToKeep - usage.IdleCount
		newSize := min(usage.TotalCount+step, spec.MaxSize)
		t := ScaleUp
		if newSize == usage.TotalCount {
			t = NoOpReachMax
		}
		return ScaleDecision{
			SkuID:      spec.SkuID,
			ClusterID:  spec.ClusterID,
			DesireSize: newSize,
			MinSize:    newSize,
			MaxSize:    newSize,
			Type:       t,
		}, true

	default:
		return ScaleDecision{}, false
	}
}
