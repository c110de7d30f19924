package fleet

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/caredai/daytona/pkg/daytona/client"
)

// fakeFleetAPI serves a fixed runner list and records calls.
type fakeFleetAPI struct {
	runners []client.Runner
	err     error
	calls   int
}

func (f *fakeFleetAPI) ListRunners(ctx context.Context, regionID string) ([]client.Runner, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.runners, nil
}

func idleRunner(name, domain string, cpu, mem float32) client.Runner {
	return client.Runner{
		ID:     "id-" + name,
		Name:   name,
		Domain: domain,
		CPU:    cpu,
		Memory: mem,
	}
}

func activeRunner(name, domain string, cpu, mem, allocCPU, allocMem float32) client.Runner {
	r := idleRunner(name, domain, cpu, mem)
	r.CurrentAllocatedCPU = allocCPU
	r.CurrentAllocatedMemoryGiB = allocMem
	return r
}

func deletableRunner(name, domain string, cpu, mem float32) client.Runner {
	r := idleRunner(name, domain, cpu, mem)
	r.Unschedulable = true
	return r
}

func poolNode(name, ip string, cpu, mem string, unschedulable bool) corev1.Node {
	return corev1.Node{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: map[string]string{NodeSelectorKey: "true"},
		},
		Spec: corev1.NodeSpec{
			Unschedulable: unschedulable,
		},
		Status: corev1.NodeStatus{
			Addresses: []corev1.NodeAddress{
				{Type: corev1.NodeInternalIP, Address: ip},
			},
			Allocatable: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse(cpu),
				corev1.ResourceMemory: resource.MustParse(mem),
			},
		},
	}
}

func placeholderPod(name, nodeName string) corev1.Pod {
	return corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "daytona",
			Labels:    map[string]string{"app": PlaceholderPodLabel},
		},
		Spec: corev1.PodSpec{
			NodeName: nodeName,
		},
	}
}

func testConfig() *Config {
	return &Config{
		APIPort:                       "8080",
		DaytonaAPIURL:                 "https://api.daytona.example",
		DaytonaAPIKey:                 "secret",
		ProviderNamespace:             "daytona",
		RegionID:                      "eu-1",
		MaxResourceUtilizationPercent: 80,
		MinIdleRunners:                1,
		MinIdleCPU:                    8,
		MinIdleMemoryGiB:              16,
	}
}
