package tools

import (
	"k8s.io/client-go/kubernetes"

	"alertagent/internal/agent"
)

// K8sTools returns the Kubernetes helper tools.
func K8sTools(client kubernetes.Interface) []agent.Tool {
	return []agent.Tool{
		NewGetAllNamespacesTool(client),
		NewGetAllDeploymentsTool(client),
		NewGetDeploymentStatusTool(client),
		NewGetPodsPerDeploymentTool(client),
		NewGetPodLogsTool(client),
		// Write operations
		NewSetDeploymentReplicasTool(client),
	}
}
