package clusterstate

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/CortezFrazierJr/mantis/internal/scaler"
)

func agentPod(name, sku string, idle bool) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "agents",
			Labels: map[string]string{
				skuLabel:  sku,
				idleLabel: boolLabel(idle),
			},
		},
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestAuthority_GetClusterUsage(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		agentPod("a1", "sku1", false),
		agentPod("a2", "sku1", true),
		agentPod("a3", "sku1", true),
		agentPod("a4", "sku2", false),
	)
	a := newAuthority(clientset, "agents")

	resp, err := a.GetClusterUsage(context.Background(), "cluster-1")
	if err != nil {
		t.Fatalf("GetClusterUsage: %v", err)
	}
	if len(resp.Usages) != 2 {
		t.Fatalf("expected 2 SKU groups, got %d", len(resp.Usages))
	}

	bySku := map[scaler.SkuID]scaler.UsageByMachineDefinition{}
	for _, u := range resp.Usages {
		bySku[u.Def.DefinitionID] = u
	}

	if u := bySku["sku1"]; u.TotalCount != 3 || u.IdleCount != 2 {
		t.Errorf("sku1 usage = %+v, want total=3 idle=2", u)
	}
	if u := bySku["sku2"]; u.TotalCount != 1 || u.IdleCount != 0 {
		t.Errorf("sku2 usage = %+v, want total=1 idle=0", u)
	}
}

func TestAuthority_GetClusterIdleInstancesCapped(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		agentPod("a1", "sku1", true),
		agentPod("a2", "sku1", true),
		agentPod("a3", "sku1", true),
	)
	a := newAuthority(clientset, "agents")

	resp, err := a.GetClusterIdleInstances(context.Background(), scaler.IdleInstancesRequest{
		SkuID:            "sku1",
		DesireSize:       1,
		MaxInstanceCount: 2,
	})
	if err != nil {
		t.Fatalf("GetClusterIdleInstances: %v", err)
	}
	if len(resp.Instances) != 2 {
		t.Fatalf("expected instances capped at 2, got %d", len(resp.Instances))
	}
}
