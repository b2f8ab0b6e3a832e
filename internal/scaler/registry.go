package scaler

// RuleRegistry is the in-memory SkuID -> *ScaleRule map for one cluster.
// Replace is the only mutator and is called exclusively from the owning
// ScalerLoop's serialized inbox. The map is not guarded by a lock, so Get
// and Snapshot are not safe to call concurrently with Replace; external
// readers (e.g. the HTTP handler backing GET /clusters/{id}/ruleset) go
// through Loop.RuleSetSnapshot, which runs Snapshot inside the inbox.
type RuleRegistry struct {
	rules map[SkuID]*ScaleRule
}

// NewRuleRegistry returns an empty registry.
func NewRuleRegistry() *RuleRegistry {
	return &RuleRegistry{rules: make(map[SkuID]*ScaleRule)}
}

// Get looks up the live rule for a SKU.
func (g *RuleRegistry) Get(sku SkuID) (*ScaleRule, bool) {
	r, ok := g.rules[sku]
	return r, ok
}

// Snapshot returns an immutable copy of the current SkuID -> ScaleSpec
// mapping, safe to hand to an external reader.
func (g *RuleRegistry) Snapshot() map[SkuID]ScaleSpec {
	out := make(map[SkuID]ScaleSpec, len(g.rules))
	for sku, rule := range g.rules {
		out[sku] = rule.Spec()
	}
	return out
}

// Len reports the number of live rules. The ScalerLoop uses this to decide
// whether it is implicitly disabled (no rules to evaluate against).
func (g *RuleRegistry) Len() int {
	return len(g.rules)
}

// Replace performs an atomic whole-set swap: for each SKU in fetched,
// insert a fresh rule or update the existing one
// in place (preserving its cooldown clock); for each SKU present in the
// registry but absent from fetched, remove it. After Replace returns,
// Snapshot's keys equal fetched's keys exactly.
func (g *RuleRegistry) Replace(fetched map[SkuID]ScaleSpec, clock Clock) {
	for sku := range g.rules {
		if _, ok := fetched[sku]; !ok {
			delete(g.rules, sku)
		}
	}
	for sku, spec := range fetched {
		if existing, ok := g.rules[sku]; ok {
			existing.updateSpec(spec)
			continue
		}
		g.rules[sku] = NewScaleRule(spec, clock)
	}
}
