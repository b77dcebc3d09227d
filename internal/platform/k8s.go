package platform

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// K8sPodLister implements podhealth.PodLister against a real cluster via
// client-go, using either the in-cluster config or an explicit kubeconfig
// path.
type K8sPodLister struct {
	clientset *kubernetes.Clientset
}

// NewInClusterPodLister builds a K8sPodLister from the in-cluster service
// account config, the normal deployment mode inside the cluster this
// service runs alongside.
func NewInClusterPodLister() (*K8sPodLister, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, err
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &K8sPodLister{clientset: clientset}, nil
}

// NewPodListerFromConfig builds a K8sPodLister from an explicit rest.Config,
// used outside the cluster (local development, tests against a real API
// server).
func NewPodListerFromConfig(cfg *rest.Config) (*K8sPodLister, error) {
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &K8sPodLister{clientset: clientset}, nil
}

// NewPodLister builds a K8sPodLister, using the in-cluster service account
// config when useInCluster is true, otherwise the default kubeconfig
// loading rules (KUBECONFIG, then ~/.kube/config) for local development.
func NewPodLister(useInCluster bool) (*K8sPodLister, error) {
	if useInCluster {
		return NewInClusterPodLister()
	}
	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		clientcmd.NewDefaultClientConfigLoadingRules(),
		&clientcmd.ConfigOverrides{},
	).ClientConfig()
	if err != nil {
		return nil, err
	}
	return NewPodListerFromConfig(cfg)
}

// ListPods lists pods in namespace matching labelSelector.
func (l *K8sPodLister) ListPods(ctx context.Context, namespace, labelSelector string) ([]corev1.Pod, error) {
	list, err := l.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labelSelector,
	})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}
