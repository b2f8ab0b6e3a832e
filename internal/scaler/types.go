// Package scaler implements the resource cluster autoscaler control loop:
// a per-cluster, timer-driven decision maker that keeps worker-execution
// agent counts within configured bounds.
package scaler

import (
	"strconv"
	"strings"
	"time"
)

// ClusterID identifies one compute cluster. Immutable for the life of a
// ScalerLoop.
type ClusterID string

// SkuID identifies one machine-definition class within a cluster. It is
// the rule-lookup key.
type SkuID string

// MachineDefinition is an opaque descriptor for a machine class. A usage
// entry whose DefinitionID is empty is legacy and must be ignored.
type MachineDefinition struct {
	DefinitionID SkuID `json:"definitionId"`
}

// Empty reports whether this descriptor carries no usable SKU.
func (m MachineDefinition) Empty() bool {
	return m.DefinitionID == ""
}

// UsageByMachineDefinition is an instantaneous usage snapshot for one SKU.
type UsageByMachineDefinition struct {
	Def        MachineDefinition `json:"def"`
	TotalCount int               `json:"totalCount"`
	IdleCount  int               `json:"idleCount"`
}

// UsageResponse is the cluster-state authority's reply to GetClusterUsage.
type UsageResponse struct {
	ClusterID ClusterID                  `json:"clusterId"`
	Usages    []UsageByMachineDefinition `json:"usages"`
}

// ScaleSpec is a single SKU's scaling rule, as stored by the rule storage
// collaborator.
type ScaleSpec struct {
	ClusterID     ClusterID `json:"clusterId" validate:"required"`
	SkuID         SkuID     `json:"skuId" validate:"required"`
	MinSize       int       `json:"minSize" validate:"gte=0"`
	MaxSize       int       `json:"maxSize" validate:"gtefield=MinSize"`
	MinIdleToKeep int       `json:"minIdleToKeep" validate:"gte=0"`
	MaxIdleToKeep int       `json:"maxIdleToKeep" validate:"gtefield=MinIdleToKeep"`
	CoolDownSecs  int       `json:"coolDownSecs" validate:"gte=0"`
}

// ScaleType classifies the outcome of a ScaleRule evaluation.
type ScaleType string

const (
	ScaleUp      ScaleType = "ScaleUp"
	ScaleDown    ScaleType = "ScaleDown"
	NoOpReachMax ScaleType = "NoOpReachMax"
	NoOpReachMin ScaleType = "NoOpReachMin"
)

// ScaleDecision is the result of applying a ScaleRule to one usage snapshot.
// DesireSize is the target total instance count after the action; MinSize
// and MaxSize are both set to that same target, not to the controlling
// ScaleSpec's bounds.
type ScaleDecision struct {
	SkuID      SkuID
	ClusterID  ClusterID
	DesireSize int
	MinSize    int
	MaxSize    int
	Type       ScaleType
}

// IdleInstancesResponse is the cluster-state authority's reply to
// GetClusterIdleInstances. len(Instances) <= the requested cap.
type IdleInstancesResponse struct {
	SkuID      SkuID
	DesireSize int
	Instances  []InstanceID
}

// InstanceID identifies one provisioned agent instance.
type InstanceID string

// ScaleRequest is the envelope forwarded to the provisioner.
type ScaleRequest struct {
	ClusterID     ClusterID
	SkuID         SkuID
	Region        string
	EnvType       string
	DesireSize    int
	IdleInstances []InstanceID
}

// IdempotencyKey returns the provisioner-facing dedup key for this request:
// clusterId-region-envType-skuId-desireSize, missing optional fields
// rendered as empty string.
func (r ScaleRequest) IdempotencyKey() string {
	return strings.Join([]string{
		string(r.ClusterID),
		r.Region,
		r.EnvType,
		string(r.SkuID),
		strconv.Itoa(r.DesireSize),
	}, "-")
}

// Config carries the process-level settings for one ScalerLoop instance.
type Config struct {
	ClusterID               ClusterID
	ScalerPullThreshold     time.Duration
	RuleSetRefreshThreshold time.Duration
	Clock                   Clock
}

// Clock is the monotonic-ish time source shared by a ScalerLoop and every
// ScaleRule it owns. Each ScaleRule.Apply reads the clock once per
// evaluation, so a handler that evaluates several rules reads it once per
// rule rather than once per handler.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
