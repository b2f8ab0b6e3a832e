package rulestorage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pulumi/pulumi/sdk/v3/go/auto"
	"github.com/rs/zerolog/log"

	"github.com/CortezFrazierJr/mantis/internal/scaler"
)

// PulumiStore implements scaler.RuleStorageProvider by reading a Pulumi
// stack's outputs, one stack per ClusterID (stack name == string(ClusterID)).
// UpsertStackLocalSource -> Outputs -> JSON round trip, with validation
// delegated to the shared specValidator.
type PulumiStore struct {
	workDir   string
	outputKey string
	validator *specValidator
}

// NewPulumiStore builds a store that reads stack outputs from programs
// under workDir. outputKey names the stack output holding the scale rule
// map; it defaults to "resourcescaler" when empty.
func NewPulumiStore(workDir, outputKey string) *PulumiStore {
	if outputKey == "" {
		outputKey = "resourcescaler"
	}
	return &PulumiStore{workDir: workDir, outputKey: outputKey, validator: newSpecValidator()}
}

// GetScaleRules loads the stack named after clusterID and decodes its
// outputKey output into a SkuID -> ScaleSpec map.
func (p *PulumiStore) GetScaleRules(ctx context.Context, clusterID scaler.ClusterID) (map[scaler.SkuID]scaler.ScaleSpec, error) {
	s, err := auto.UpsertStackLocalSource(ctx, string(clusterID), p.workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load stack for cluster %s: %w", clusterID, err)
	}

	outputs, err := s.Outputs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stack outputs: %w", err)
	}

	val, ok := outputs[p.outputKey]
	if !ok {
		return nil, fmt.Errorf("stack output %q not found", p.outputKey)
	}

	data, err := json.Marshal(val.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s output: %w", p.outputKey, err)
	}

	var raw map[string]scaler.ScaleSpec
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scale rules: %w", err)
	}

	specs := make(map[scaler.SkuID]scaler.ScaleSpec, len(raw))
	for skuField, spec := range raw {
		spec.ClusterID = clusterID
		spec.SkuID = scaler.SkuID(skuField)
		if err := p.validator.Validate(spec); err != nil {
			log.Warn().Err(err).Str("clusterId", string(clusterID)).Str("sku", skuField).
				Msg("dropping malformed scale rule")
			continue
		}
		specs[spec.SkuID] = spec
	}
	return specs, nil
}
