package provisioner

import "testing"

func TestNewPulumiStackResolver_DefaultsOutputKey(t *testing.T) {
	r := NewPulumiStackResolver("dev", "./infra", "")
	if r.outputKey != "resourcescalerTargets" {
		t.Errorf("outputKey = %q, want default %q", r.outputKey, "resourcescalerTargets")
	}
}

func TestNewPulumiStackResolver_HonorsExplicitOutputKey(t *testing.T) {
	r := NewPulumiStackResolver("dev", "./infra", "customTargets")
	if r.outputKey != "customTargets" {
		t.Errorf("outputKey = %q, want %q", r.outputKey, "customTargets")
	}
}

// TestPulumiStackResolver_Resolve requires a real Pulumi stack and is
// intended to be run manually or in a CI environment with Pulumi configured.
func TestPulumiStackResolver_Resolve(t *testing.T) {
	t.Skip("skipping pulumi-backed test in this environment due to lack of a real stack")
}
