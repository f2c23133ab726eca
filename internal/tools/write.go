package tools

import (
	"context"
	"fmt"
	"slices"

	autoscalingv1 "k8s.io/api/autoscaling/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"alertagent/internal/agent"
)

type SetReplicasArgs struct {
	Namespace  string `json:"namespace"`
	Deployment string `json:"deployment"`
	Replicas   int32  `json:"replicas"`
}

// SetDeploymentReplicasTool implements the set_deployment_replicas tool
type SetDeploymentReplicasTool struct {
	client kubernetes.Interface
}

func NewSetDeploymentReplicasTool(client kubernetes.Interface) *SetDeploymentReplicasTool {
	return &SetDeploymentReplicasTool{client: client}
}

func (t *SetDeploymentReplicasTool) Name() string {
	return "set_deployment_replicas"
}

func (t *SetDeploymentReplicasTool) Description() string {
	return "Set the desired number of replicas for a deployment. This is a high-risk operation and requires explicit approval."
}

func (t *SetDeploymentReplicasTool) Schema() string {
	return `{
		"type": "object",
		"properties": {
			"namespace": {
				"type": "string",
				"description": "Kubernetes namespace"
			},
			"deployment": {
				"type": "string",
				"description": "Deployment name within the namespace"
			},
			"replicas": {
				"type": "integer",
				"minimum": 0,
				"description": "The desired number of replicas"
			}
		},
		"required": ["namespace", "deployment", "replicas"]
	}`
}

func (t *SetDeploymentReplicasTool) SafetyLevel() agent.SafetyLevel {
	return agent.SafetyLevelHighRisk
}

func (t *SetDeploymentReplicasTool) Execute(ctx context.Context, args string) (string, error) {
	var parsedArgs SetReplicasArgs
	if err := parseArgs(args, &parsedArgs); err != nil {
		return "", err
	}
	if parsedArgs.Replicas < 0 {
		return "", fmt.Errorf("replicas must be >= 0, got %d", parsedArgs.Replicas)
	}

	deployments, err := listDeployments(ctx, t.client, parsedArgs.Namespace)
	if err != nil {
		return "", err
	}
	if !slices.Contains(deployments, parsedArgs.Deployment) {
		return "", fmt.Errorf("deployment '%s' does not exist in namespace '%s'", parsedArgs.Deployment, parsedArgs.Namespace)
	}

	scale := &autoscalingv1.Scale{
		ObjectMeta: metav1.ObjectMeta{
			Name:      parsedArgs.Deployment,
			Namespace: parsedArgs.Namespace,
		},
		Spec: autoscalingv1.ScaleSpec{
			Replicas: parsedArgs.Replicas,
		},
	}

	_, err = t.client.AppsV1().Deployments(parsedArgs.Namespace).UpdateScale(ctx, parsedArgs.Deployment, scale, metav1.UpdateOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to scale deployment: %w", err)
	}

	return fmt.Sprintf("Successfully scaled deployment '%s' in namespace '%s' to %d replicas", parsedArgs.Deployment, parsedArgs.Namespace, parsedArgs.Replicas), nil
}
