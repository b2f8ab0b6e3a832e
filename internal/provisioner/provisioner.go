// Package provisioner implements the provisioner collaborator's boundary
// contract, backed by the Pulumi Automation API. A ScaleRequest's
// desireSize is written into the target stack's config,
// keyed by SKU, and applied with a targeted update against the stack
// resource that owns that SKU's instance count.
//
// The same UpsertStackLocalSource/SetConfig/targeted-Up/retry-on-conflict
// sequence applies per (clusterID, SkuID) pair rather than once per process.
package provisioner

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pulumi/pulumi/sdk/v3/go/auto"
	"github.com/pulumi/pulumi/sdk/v3/go/auto/optup"
	"github.com/rs/zerolog/log"

	"github.com/CortezFrazierJr/mantis/internal/scaler"
)

// StackResolver maps a scale request to the Pulumi stack coordinates (stack
// name, work dir, target URN, config key) that own that SKU's capacity.
// PulumiStackResolver reads this mapping from an infra stack output kept
// separate from the ScaleSpec storage used by internal/rulestorage.
type StackResolver interface {
	Resolve(clusterID scaler.ClusterID, skuID scaler.SkuID) (StackTarget, error)
}

// StackTarget names one Pulumi-managed resource whose config controls a
// SKU's instance count.
type StackTarget struct {
	StackName string
	WorkDir   string
	TargetURN string
	ConfigKey string
}

// Provisioner implements scaler.Provisioner against the Pulumi Automation
// API.
type Provisioner struct {
	resolver   StackResolver
	maxRetries int
	baseDelay  time.Duration
}

// New constructs a Provisioner with default retry settings (5 retries,
// 1s base delay).
func New(resolver StackResolver) *Provisioner {
	return &Provisioner{resolver: resolver, maxRetries: 5, baseDelay: time.Second}
}

// Scale applies one ScaleRequest: set the SKU's config key to desireSize
// (plus, for a ScaleDown, the selected idle instance IDs so the Pulumi
// program can cordon exactly those instances before removing capacity),
// then run a targeted update.
func (p *Provisioner) Scale(ctx context.Context, req scaler.ScaleRequest) error {
	target, err := p.resolver.Resolve(req.ClusterID, req.SkuID)
	if err != nil {
		return fmt.Errorf("failed to resolve stack target for sku %s: %w", req.SkuID, err)
	}

	s, err := auto.UpsertStackLocalSource(ctx, target.StackName, target.WorkDir)
	if err != nil {
		return fmt.Errorf("failed to load stack: %w", err)
	}

	if err := s.SetConfig(ctx, target.ConfigKey, auto.ConfigValue{Value: fmt.Sprintf("%d", req.DesireSize)}); err != nil {
		return fmt.Errorf("failed to set config: %w", err)
	}

	if err := s.SetConfig(ctx, target.ConfigKey+"IdempotencyKey", auto.ConfigValue{Value: req.IdempotencyKey()}); err != nil {
		return fmt.Errorf("failed to set idempotency key config: %w", err)
	}

	if len(req.IdleInstances) > 0 {
		idleJSON, err := json.Marshal(req.IdleInstances)
		if err != nil {
			return fmt.Errorf("failed to marshal idle instances: %w", err)
		}
		if err := s.SetConfig(ctx, target.ConfigKey+"IdleInstances", auto.ConfigValue{Value: string(idleJSON)}); err != nil {
			return fmt.Errorf("failed to set idle instances config: %w", err)
		}
	}

	log.Debug().Str("idempotencyKey", req.IdempotencyKey()).Str("targetUrn", target.TargetURN).
		Msg("applying scale request")

	return p.retryOnConcurrency(ctx, func() error {
		_, err := s.Up(ctx, optup.Target([]string{target.TargetURN}))
		return err
	})
}

// retryOnConcurrency implements exponential backoff for 409 Conflict /
// concurrent-update errors.
func (p *Provisioner) retryOnConcurrency(ctx context.Context, op func() error) error {
	for i := 0; i <= p.maxRetries; i++ {
		err := op()
		if err == nil {
			return nil
		}

		errMsg := strings.ToLower(err.Error())
		isConflict := strings.Contains(errMsg, "conflict") || strings.Contains(errMsg, "concurrent update")
		if !isConflict {
			return err
		}
		if i == p.maxRetries {
			return fmt.Errorf("max retries exceeded for concurrent update: %w", err)
		}

		delay := p.baseDelay * time.Duration(math.Pow(2, float64(i)))
		log.Info().Dur("delay", delay).Msg("concurrent stack update detected, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil
}
