// Package podhealth implements the six-step pod liveness check: pod exists,
// running, not terminating, container ready, container running, restart
// stable.
package podhealth

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/wisbric/argusd/pkg/breaker"
	"github.com/wisbric/argusd/pkg/restarttracker"
)

// Status is the outcome of a pod health check.
type Status int

const (
	Healthy Status = iota
	Down
	Unstable
	Unknown
)

func (s Status) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Down:
		return "down"
	case Unstable:
		return "unstable"
	default:
		return "unknown"
	}
}

// Result is the outcome of CheckPod, including a human-readable reason for
// anything other than Healthy.
type Result struct {
	Status Status
	Reason string
}

// PodLister abstracts the Kubernetes API surface the checker needs: a
// single namespaced, label-selected pod list call.
type PodLister interface {
	ListPods(ctx context.Context, namespace, labelSelector string) ([]corev1.Pod, error)
}

// RetryConfig is the retry policy for the Kubernetes list call: up to
// MaxRetries additional attempts, waiting Delays[i] before retry i. A
// shorter Delays slice repeats its last element; an empty one retries
// without delay.
type RetryConfig struct {
	MaxRetries int
	Delays     []time.Duration
}

func (r RetryConfig) delay(retry int) time.Duration {
	if len(r.Delays) == 0 {
		return 0
	}
	if retry >= len(r.Delays) {
		retry = len(r.Delays) - 1
	}
	return r.Delays[retry]
}

// Checker runs the six-step check against a PodLister, guarding the list
// call with a retry policy and a circuit breaker shared across every pod
// this checker watches.
type Checker struct {
	lister    PodLister
	tracker   *restarttracker.Tracker
	namespace string
	cb        *breaker.Breaker
	retry     RetryConfig
}

// NewChecker creates a Checker for pods in namespace, using tracker for the
// restart-stability step, cb to guard the Kubernetes API call, and retry to
// absorb transient list failures before the breaker sees them.
func NewChecker(lister PodLister, tracker *restarttracker.Tracker, namespace string, cb *breaker.Breaker, retry RetryConfig) *Checker {
	return &Checker{lister: lister, tracker: tracker, namespace: namespace, cb: cb, retry: retry}
}

// listWithRetry runs the pod list call under the retry policy. Only a fully
// exhausted attempt sequence surfaces an error.
func (c *Checker) listWithRetry(ctx context.Context, labelSelector string) ([]corev1.Pod, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retry.delay(attempt - 1)):
			}
		}
		pods, err := c.lister.ListPods(ctx, c.namespace, labelSelector)
		if err == nil {
			return pods, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// CheckPod runs the six-step check for the pod matching labelSelector, using
// containerName to evaluate readiness and run state.
func (c *Checker) CheckPod(ctx context.Context, labelSelector, containerName string) Result {
	if !c.cb.IsAllowed() {
		return Result{Status: Unknown, Reason: "Kubernetes API circuit breaker open"}
	}

	pods, err := c.listWithRetry(ctx, labelSelector)
	if err != nil {
		c.cb.RecordFailure()
		return Result{Status: Unknown, Reason: "Kubernetes API unavailable"}
	}
	c.cb.RecordSuccess()

	// step 1: pod exists
	if len(pods) == 0 {
		return Result{Status: Down, Reason: "no pod matches selector " + labelSelector}
	}
	pod := pods[0]

	// step 2: pod phase is Running
	if pod.Status.Phase != corev1.PodRunning {
		return Result{Status: Down, Reason: fmt.Sprintf("pod phase is %q", pod.Status.Phase)}
	}

	// step 3: deletionTimestamp absent
	if pod.DeletionTimestamp != nil {
		return Result{Status: Down, Reason: "pod is terminating"}
	}

	// steps 4-5: target container ready and running
	var found *corev1.ContainerStatus
	for i := range pod.Status.ContainerStatuses {
		if pod.Status.ContainerStatuses[i].Name == containerName {
			found = &pod.Status.ContainerStatuses[i]
			break
		}
	}
	if found == nil {
		return Result{Status: Down, Reason: fmt.Sprintf("container %q not found", containerName)}
	}
	if !found.Ready {
		return Result{Status: Down, Reason: fmt.Sprintf("container %q not ready", containerName)}
	}
	if found.State.Running == nil {
		return Result{Status: Down, Reason: fmt.Sprintf("container %q state is not running", containerName)}
	}

	// step 6: restart stability
	stable, _ := c.tracker.Observe(pod.Name, int(found.RestartCount))
	if !stable {
		return Result{Status: Unstable, Reason: fmt.Sprintf("container %q restarting too frequently", containerName)}
	}

	return Result{Status: Healthy}
}

// BreakerState returns the current state of the Kubernetes API circuit
// breaker, for GET /api/k8s/circuit-breaker.
func (c *Checker) BreakerState() breaker.State {
	return c.cb.State()
}
