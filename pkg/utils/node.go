package utils

import (
	corev1 "k8s.io/api/core/v1"
)

// IsNodeReady checks if a Kubernetes Node is in Ready condition.
// Returns true if the node has a Ready condition with status True.
func IsNodeReady(node *corev1.Node) bool {
	for _, condition := range node.Status.Conditions {
		if condition.Type == corev1.NodeReady {
			return condition.Status == corev1.ConditionTrue
		}
	}
	return false
}

// NodeAddresses returns every address reported by the node, regardless of type.
// Runner domains are plain IPs, so any reported address is a valid join key.
func NodeAddresses(node *corev1.Node) []string {
	var addrs []string
	for _, addr := range node.Status.Addresses {
		addrs = append(addrs, addr.Address)
	}
	return addrs
}

// NodeAllocatable returns the node's allocatable CPU in fractional cores and
// memory in GiB.
func NodeAllocatable(node *corev1.Node) (cpuCores float32, memoryGiB float32) {
	cpuAllocatable := node.Status.Allocatable[corev1.ResourceCPU]
	memoryAllocatable := node.Status.Allocatable[corev1.ResourceMemory]

	cpuCores = float32(cpuAllocatable.MilliValue()) / 1000
	memoryGiB = float32(memoryAllocatable.Value()) / (1024 * 1024 * 1024)

	return cpuCores, memoryGiB
}
