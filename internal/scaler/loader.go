package scaler

import "context"

// RuleStorageProvider is the rule storage collaborator's boundary contract:
// GetScaleRules(clusterId) -> mapping SkuID -> ScaleSpec. The response may
// be empty. Concrete implementations live in internal/rulestorage.
type RuleStorageProvider interface {
	GetScaleRules(ctx context.Context, clusterID ClusterID) (map[SkuID]ScaleSpec, error)
}

// RuleLoader pulls the current rule set for one cluster from the storage
// collaborator. Malformed specs are dropped with a warning by the storage
// backends rather than failing the whole fetch (see Fetch); a
// transport-level failure surfaces as an error so the ScalerLoop can log it
// and retain the existing registry.
type RuleLoader struct {
	storage RuleStorageProvider
}

// NewRuleLoader constructs a loader bound to one storage collaborator.
func NewRuleLoader(storage RuleStorageProvider) *RuleLoader {
	return &RuleLoader{storage: storage}
}

// Fetch delegates to the storage collaborator and returns its raw response.
// Per-spec ingestion validation (dropping malformed specs) happens at the
// storage boundary itself (internal/rulestorage), since that is where the
// wire format is known; a RuleLoader only ever sees already-validated
// ScaleSpecs or a hard error.
func (l *RuleLoader) Fetch(ctx context.Context, clusterID ClusterID) (map[SkuID]ScaleSpec, error) {
	return l.storage.GetScaleRules(ctx, clusterID)
}
