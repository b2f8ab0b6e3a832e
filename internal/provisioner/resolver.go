package provisioner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pulumi/pulumi/sdk/v3/go/auto"

	"github.com/CortezFrazierJr/mantis/internal/scaler"
)

// stackTargetEntry mirrors one SKU's infra coordinates as published by a
// Pulumi stack output: a target URN and config key, minus the scaling
// guardrails, which live in internal/rulestorage's ScaleSpec instead.
type stackTargetEntry struct {
	StackName string `json:"stackName"`
	WorkDir   string `json:"workDir"`
	TargetURN string `json:"targetUrn"`
	ConfigKey string `json:"configKey"`
}

// PulumiStackResolver implements StackResolver by reading a stack output
// that maps SkuID -> infra coordinates. The same UpsertStackLocalSource ->
// Outputs -> JSON round trip used elsewhere for scaling policy applies
// here to resolving where a SKU's capacity lives instead.
type PulumiStackResolver struct {
	stackName string
	workDir   string
	outputKey string
}

// NewPulumiStackResolver builds a resolver against a single infra stack
// shared across every SKU for clusterID. outputKey defaults to
// "resourcescalerTargets" when empty.
func NewPulumiStackResolver(stackName, workDir, outputKey string) *PulumiStackResolver {
	if outputKey == "" {
		outputKey = "resourcescalerTargets"
	}
	return &PulumiStackResolver{stackName: stackName, workDir: workDir, outputKey: outputKey}
}

// Resolve looks up skuID's infra coordinates. It hits the Automation API on
// every call rather than caching, trusting the stack as the source of
// truth.
func (r *PulumiStackResolver) Resolve(clusterID scaler.ClusterID, skuID scaler.SkuID) (StackTarget, error) {
	ctx := context.Background()
	s, err := auto.UpsertStackLocalSource(ctx, r.stackName, r.workDir)
	if err != nil {
		return StackTarget{}, fmt.Errorf("failed to load stack: %w", err)
	}

	outputs, err := s.Outputs(ctx)
	if err != nil {
		return StackTarget{}, fmt.Errorf("failed to get stack outputs: %w", err)
	}

	val, ok := outputs[r.outputKey]
	if !ok {
		return StackTarget{}, fmt.Errorf("stack output %q not found", r.outputKey)
	}

	data, err := json.Marshal(val.Value)
	if err != nil {
		return StackTarget{}, fmt.Errorf("failed to marshal %s output: %w", r.outputKey, err)
	}

	var targets map[string]stackTargetEntry
	if err := json.Unmarshal(data, &targets); err != nil {
		return StackTarget{}, fmt.Errorf("failed to unmarshal stack targets: %w", err)
	}

	entry, ok := targets[string(skuID)]
	if !ok {
		return StackTarget{}, fmt.Errorf("no stack target registered for cluster %s sku %s", clusterID, skuID)
	}
	if entry.TargetURN == "" {
		return StackTarget{}, fmt.Errorf("targetUrn is required for sku %s", skuID)
	}
	if entry.ConfigKey == "" {
		return StackTarget{}, fmt.Errorf("configKey is required for sku %s", skuID)
	}

	return StackTarget{
		StackName: entry.StackName,
		WorkDir:   entry.WorkDir,
		TargetURN: entry.TargetURN,
		ConfigKey: entry.ConfigKey,
	}, nil
}
