// Package clusterstate implements the cluster-state authority collaborator's
// boundary contract, backed by a Kubernetes API server. Worker-execution
// agents are modeled as Pods: every agent Pod carries a
// "resourcescaler.io/sku" label equal to its SkuID, and the worker runtime
// itself toggles a "resourcescaler.io/idle" label when it picks up or
// finishes a task.
package clusterstate

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"

	"github.com/CortezFrazierJr/mantis/internal/scaler"
)

const (
	skuLabel  = "resourcescaler.io/sku"
	idleLabel = "resourcescaler.io/idle"
)

// Authority implements scaler.ClusterStateAuthority against one Kubernetes
// namespace. One ClusterID maps to one namespace. clientset is
// kubernetes.Interface (not the concrete *kubernetes.Clientset) so tests
// can substitute client-go's fake clientset.
type Authority struct {
	clientset kubernetes.Interface
	namespace string
}

// newAuthority wraps an already-constructed clientset, used by NewAuthority
// and by tests that inject a fake clientset.
func newAuthority(clientset kubernetes.Interface, namespace string) *Authority {
	return &Authority{clientset: clientset, namespace: namespace}
}

// NewAuthority builds a clientset the same way as an in-cluster agent,
// falling back to the local kubeconfig for out-of-cluster development.
// Follows the usual in-cluster-first, kubeconfig-fallback construction.
func NewAuthority(namespace string) (*Authority, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := filepath.Join(homedir.HomeDir(), ".kube", "config")
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
		}
		log.Info().Str("kubeconfig", kubeconfig).Msg("using local kubeconfig for cluster-state authority")
	} else {
		log.Info().Msg("using in-cluster configuration for cluster-state authority")
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return newAuthority(clientset, namespace), nil
}

// GetClusterUsage lists agent pods grouped by SKU label and returns a
// totalCount/idleCount snapshot per SKU.
func (a *Authority) GetClusterUsage(ctx context.Context, clusterID scaler.ClusterID) (scaler.UsageResponse, error) {
	pods, err := a.clientset.CoreV1().Pods(a.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: skuLabel,
	})
	if err != nil {
		return scaler.UsageResponse{}, fmt.Errorf("failed to list agent pods: %w", err)
	}

	counts := make(map[scaler.SkuID]*scaler.UsageByMachineDefinition)
	for _, pod := range pods.Items {
		sku := scaler.SkuID(pod.Labels[skuLabel])
		if sku == "" {
			continue
		}
		u, ok := counts[sku]
		if !ok {
			u = &scaler.UsageByMachineDefinition{Def: scaler.MachineDefinition{DefinitionID: sku}}
			counts[sku] = u
		}
		u.TotalCount++
		if pod.Labels[idleLabel] == "true" {
			u.IdleCount++
		}
	}

	usages := make([]scaler.UsageByMachineDefinition, 0, len(counts))
	for _, u := range counts {
		usages = append(usages, *u)
	}
	return scaler.UsageResponse{ClusterID: clusterID, Usages: usages}, nil
}

// GetClusterIdleInstances lists idle pods for one SKU, capped at
// maxInstanceCount, and returns their pod names as InstanceIDs.
func (a *Authority) GetClusterIdleInstances(ctx context.Context, req scaler.IdleInstancesRequest) (scaler.IdleInstancesResponse, error) {
	selector := fmt.Sprintf("%s=%s,%s=true", skuLabel, req.SkuID, idleLabel)
	pods, err := a.clientset.CoreV1().Pods(a.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector,
	})
	if err != nil {
		return scaler.IdleInstancesResponse{}, fmt.Errorf("failed to list idle pods: %w", err)
	}

	limit := min(req.MaxInstanceCount, len(pods.Items))
	ids := make([]scaler.InstanceID, 0, limit)
	for _, pod := range pods.Items[:limit] {
		ids = append(ids, scaler.InstanceID(pod.Name))
	}

	return scaler.IdleInstancesResponse{
		SkuID:      req.SkuID,
		DesireSize: req.DesireSize,
		Instances:  ids,
	}, nil
}
