package tools

import (
	"context"
	"fmt"
	"io"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"alertagent/internal/agent"
)

const podLogTailLines = 1000

type PodLogsArgs struct {
	Namespace string `json:"namespace"`
	Pod       string `json:"pod"`
	// Previous forces (or suppresses) logs of the last terminated container.
	// When unset it is detected from the container status.
	Previous *bool `json:"previous,omitempty"`
}

// GetPodLogsTool implements the get_pod_logs tool
type GetPodLogsTool struct {
	client kubernetes.Interface
}

func NewGetPodLogsTool(client kubernetes.Interface) *GetPodLogsTool {
	return &GetPodLogsTool{client: client}
}

func (t *GetPodLogsTool) Name() string {
	return "get_pod_logs"
}

func (t *GetPodLogsTool) Description() string {
	return "Get the last 1000 log lines (with timestamps) of a single-container pod. If the container crashed or restarted, the logs from before the crash are returned unless previous is set explicitly."
}

func (t *GetPodLogsTool) Schema() string {
	return `{
		"type": "object",
		"properties": {
			"namespace": {
				"type": "string",
				"description": "The namespace of the pod"
			},
			"pod": {
				"type": "string",
				"description": "The name of the pod"
			},
			"previous": {
				"type": "boolean",
				"description": "Return logs of the previous container instance; auto-detected when omitted"
			}
		},
		"required": ["namespace", "pod"]
	}`
}

func (t *GetPodLogsTool) SafetyLevel() agent.SafetyLevel {
	return agent.SafetyLevelReadOnly
}

func (t *GetPodLogsTool) Execute(ctx context.Context, args string) (string, error) {
	var parsedArgs PodLogsArgs
	if err := parseArgs(args, &parsedArgs); err != nil {
		return "", err
	}
	if err := requireNamespace(ctx, t.client, parsedArgs.Namespace); err != nil {
		return "", err
	}

	pod, err := t.client.CoreV1().Pods(parsedArgs.Namespace).Get(ctx, parsedArgs.Pod, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to read pod '%s' in namespace '%s': %w", parsedArgs.Pod, parsedArgs.Namespace, err)
	}
	if len(pod.Spec.Containers) != 1 {
		return "", fmt.Errorf("pod '%s' has %d containers; only single-container pods are supported", parsedArgs.Pod, len(pod.Spec.Containers))
	}
	container := pod.Spec.Containers[0].Name

	previous := crashed(pod, container)
	if parsedArgs.Previous != nil {
		previous = *parsedArgs.Previous
	}

	tail := int64(podLogTailLines)
	req := t.client.CoreV1().Pods(parsedArgs.Namespace).GetLogs(parsedArgs.Pod, &corev1.PodLogOptions{
		Container:  container,
		Previous:   previous,
		Timestamps: true,
		TailLines:  &tail,
	})

	podLogs, err := req.Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("error in opening stream: %w", err)
	}
	defer podLogs.Close()

	buf := new(strings.Builder)
	if _, err := io.Copy(buf, podLogs); err != nil {
		return "", fmt.Errorf("error in reading stream: %w", err)
	}

	return buf.String(), nil
}

// crashed reports whether the container restarted or sits in CrashLoopBackOff.
func crashed(pod *corev1.Pod, container string) bool {
	for _, s := range pod.Status.ContainerStatuses {
		if s.Name != container {
			continue
		}
		if s.RestartCount > 0 {
			return true
		}
		return s.State.Waiting != nil && s.State.Waiting.Reason == "CrashLoopBackOff"
	}
	return false
}
