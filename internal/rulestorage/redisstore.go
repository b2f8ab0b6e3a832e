// Package rulestorage implements the rule storage collaborator's boundary
// contract: GetScaleRules(clusterId) -> mapping SkuID -> ScaleSpec. Two
// interchangeable backends are provided: a Redis-backed
// store for operators who keep rules independent of any one Pulumi stack,
// and a Pulumi-stack-output-backed store for operators who prefer rules
// to live next to the infrastructure they gate.
package rulestorage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/CortezFrazierJr/mantis/internal/scaler"
)

// RedisStore implements scaler.RuleStorageProvider against a Redis hash
// keyed "scalerules:{clusterId}", one field per SKU holding a
// JSON-encoded scaler.ScaleSpec. Follows a marshal-then-push idiom and
// wrapped-error style.
type RedisStore struct {
	client    *redis.Client
	validator *specValidator
}

// NewRedisStore wraps an already-configured redis.Client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, validator: newSpecValidator()}
}

func redisKey(clusterID scaler.ClusterID) string {
	return fmt.Sprintf("scalerules:%s", clusterID)
}

// GetScaleRules reads every field of the cluster's rule hash, JSON-decodes
// it into a ScaleSpec, and drops (with a warning, not a hard failure)
// entries that fail validation — a malformed rule must not take down the
// whole fetch.
func (s *RedisStore) GetScaleRules(ctx context.Context, clusterID scaler.ClusterID) (map[scaler.SkuID]scaler.ScaleSpec, error) {
	raw, err := s.client.HGetAll(ctx, redisKey(clusterID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read scale rules from redis: %w", err)
	}

	specs := make(map[scaler.SkuID]scaler.ScaleSpec, len(raw))
	for skuField, jsonValue := range raw {
		var spec scaler.ScaleSpec
		if err := json.Unmarshal([]byte(jsonValue), &spec); err != nil {
			log.Warn().Err(err).Str("clusterId", string(clusterID)).Str("sku", skuField).
				Msg("dropping scale rule with unparseable JSON")
			continue
		}
		spec.ClusterID = clusterID
		spec.SkuID = scaler.SkuID(skuField)

		if err := s.validator.Validate(spec); err != nil {
			log.Warn().Err(err).Str("clusterId", string(clusterID)).Str("sku", skuField).
				Msg("dropping malformed scale rule")
			continue
		}
		specs[spec.SkuID] = spec
	}
	return specs, nil
}

// PutScaleRule writes one SKU's spec back to Redis. Not part of
// GetScaleRules' read-side contract, but needed for the rule storage
// collaborator to be end-to-end testable/operable without a separate
// control-plane tool.
func (s *RedisStore) PutScaleRule(ctx context.Context, spec scaler.ScaleSpec) error {
	data, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to marshal scale spec: %w", err)
	}
	if err := s.client.HSet(ctx, redisKey(spec.ClusterID), string(spec.SkuID), data).Err(); err != nil {
		return fmt.Errorf("failed to write scale rule to redis: %w", err)
	}
	return nil
}
