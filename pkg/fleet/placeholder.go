package fleet

import (
	"context"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/caredai/daytona/pkg/metrics"
)

const placeholderSuffixLength = 8

// Placeholders manages the placeholder pods that drive cluster autoscaling.
// A pending placeholder forces the cluster autoscaler to provision a node;
// deleting a scheduled placeholder lets it reclaim the node.
type Placeholders struct {
	clientset kubernetes.Interface
	logger    *zap.SugaredLogger
	namespace string
}

// NewPlaceholders creates a placeholder pod manager.
func NewPlaceholders(clientset kubernetes.Interface, logger *zap.SugaredLogger, namespace string) *Placeholders {
	return &Placeholders{
		clientset: clientset,
		logger:    logger,
		namespace: namespace,
	}
}

// Create creates one placeholder pod. Anti-affinity against its own label
// keeps one placeholder per node, the node selector and toleration pin it to
// the sandbox pool, and the pause container keeps the resource footprint
// negligible.
func (p *Placeholders) Create(ctx context.Context) (*corev1.Pod, error) {
	podName := fmt.Sprintf("%s-%s", PlaceholderPodLabel, randomSuffix(placeholderSuffixLength))
	p.logger.Infow("creating placeholder pod", "pod", podName, "namespace", p.namespace)

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName,
			Namespace: p.namespace,
			Labels: map[string]string{
				"app": PlaceholderPodLabel,
			},
		},
		Spec: corev1.PodSpec{
			Affinity: &corev1.Affinity{
				PodAntiAffinity: &corev1.PodAntiAffinity{
					RequiredDuringSchedulingIgnoredDuringExecution: []corev1.PodAffinityTerm{
						{
							LabelSelector: &metav1.LabelSelector{
								MatchExpressions: []metav1.LabelSelectorRequirement{
									{
										Key:      "app",
										Operator: metav1.LabelSelectorOpIn,
										Values:   []string{PlaceholderPodLabel},
									},
								},
							},
							TopologyKey: "kubernetes.io/hostname",
						},
					},
				},
			},
			NodeSelector: map[string]string{
				NodeSelectorKey: "true",
			},
			Tolerations: []corev1.Toleration{
				{
					Key:      TaintKey,
					Operator: corev1.TolerationOpEqual,
					Value:    "true",
					Effect:   corev1.TaintEffectNoExecute,
				},
			},
			Containers: []corev1.Container{
				{
					Name:  "pause",
					Image: PauseImage,
				},
			},
			RestartPolicy: corev1.RestartPolicyNever,
		},
	}

	created, err := p.clientset.CoreV1().Pods(p.namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create placeholder pod %s: %w", podName, err)
	}

	metrics.PlaceholdersCreatedTotal.Inc()
	p.logger.Infow("created placeholder pod", "pod", created.Name)
	return created, nil
}

// Delete removes a placeholder pod. An already-missing pod is not an error.
func (p *Placeholders) Delete(ctx context.Context, name, reason string) error {
	err := p.clientset.CoreV1().Pods(p.namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			p.logger.Debugw("placeholder pod already gone", "pod", name)
			return nil
		}
		return fmt.Errorf("failed to delete placeholder pod %s: %w", name, err)
	}

	metrics.PlaceholdersDeletedTotal.WithLabelValues(reason).Inc()
	p.logger.Infow("deleted placeholder pod", "pod", name, "reason", reason)
	return nil
}

const suffixCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomSuffix(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = suffixCharset[rand.Intn(len(suffixCharset))]
	}
	return string(b)
}
