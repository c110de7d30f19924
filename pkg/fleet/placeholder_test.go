package fleet

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestPlaceholderCreate(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	mgr := NewPlaceholders(clientset, zaptest.NewLogger(t).Sugar(), "daytona")

	pod, err := mgr.Create(context.Background())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(pod.Name, PlaceholderPodLabel+"-"))
	suffix := strings.TrimPrefix(pod.Name, PlaceholderPodLabel+"-")
	assert.Len(t, suffix, placeholderSuffixLength)
	assert.Equal(t, "daytona", pod.Namespace)
	assert.Equal(t, PlaceholderPodLabel, pod.Labels["app"])

	assert.Equal(t, map[string]string{NodeSelectorKey: "true"}, pod.Spec.NodeSelector)
	assert.Equal(t, corev1.RestartPolicyNever, pod.Spec.RestartPolicy)

	require.Len(t, pod.Spec.Containers, 1)
	assert.Equal(t, "pause", pod.Spec.Containers[0].Name)
	assert.Equal(t, PauseImage, pod.Spec.Containers[0].Image)

	require.Len(t, pod.Spec.Tolerations, 1)
	toleration := pod.Spec.Tolerations[0]
	assert.Equal(t, TaintKey, toleration.Key)
	assert.Equal(t, corev1.TolerationOpEqual, toleration.Operator)
	assert.Equal(t, "true", toleration.Value)
	assert.Equal(t, corev1.TaintEffectNoExecute, toleration.Effect)

	require.NotNil(t, pod.Spec.Affinity)
	require.NotNil(t, pod.Spec.Affinity.PodAntiAffinity)
	terms := pod.Spec.Affinity.PodAntiAffinity.RequiredDuringSchedulingIgnoredDuringExecution
	require.Len(t, terms, 1)
	assert.Equal(t, "kubernetes.io/hostname", terms[0].TopologyKey)

	// The pod is persisted in the provider namespace
	stored, err := clientset.CoreV1().Pods("daytona").Get(context.Background(), pod.Name, metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, pod.Name, stored.Name)
}

func TestPlaceholderCreateUniqueNames(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	mgr := NewPlaceholders(clientset, zaptest.NewLogger(t).Sugar(), "daytona")

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		pod, err := mgr.Create(context.Background())
		require.NoError(t, err)
		assert.False(t, seen[pod.Name], "duplicate pod name %s", pod.Name)
		seen[pod.Name] = true
	}
}

func TestPlaceholderDelete(t *testing.T) {
	existing := placeholderPod("ph-1", "node-1")
	clientset := fake.NewSimpleClientset(&existing)
	mgr := NewPlaceholders(clientset, zaptest.NewLogger(t).Sugar(), "daytona")

	require.NoError(t, mgr.Delete(context.Background(), "ph-1", "scale_down"))

	_, err := clientset.CoreV1().Pods("daytona").Get(context.Background(), "ph-1", metav1.GetOptions{})
	assert.Error(t, err)
}

func TestPlaceholderDeleteMissingPodIsNoError(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	mgr := NewPlaceholders(clientset, zaptest.NewLogger(t).Sugar(), "daytona")

	assert.NoError(t, mgr.Delete(context.Background(), "gone", "unjustified"))
}

func TestRandomSuffix(t *testing.T) {
	suffix := randomSuffix(8)
	assert.Len(t, suffix, 8)
	for _, c := range suffix {
		assert.Contains(t, suffixCharset, string(c))
	}
}
