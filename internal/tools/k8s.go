package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"alertagent/internal/agent"
)

// NamespaceArgs selects a namespace.
type NamespaceArgs struct {
	Namespace string `json:"namespace"`
}

// DeploymentArgs selects a deployment within a namespace.
type DeploymentArgs struct {
	Namespace  string `json:"namespace"`
	Deployment string `json:"deployment"`
}

const namespaceSchema = `{
		"type": "object",
		"properties": {
			"namespace": {
				"type": "string",
				"description": "Kubernetes namespace"
			}
		},
		"required": ["namespace"]
	}`

const deploymentSchema = `{
		"type": "object",
		"properties": {
			"namespace": {
				"type": "string",
				"description": "Kubernetes namespace"
			},
			"deployment": {
				"type": "string",
				"description": "Deployment name within the namespace"
			}
		},
		"required": ["namespace", "deployment"]
	}`

func parseArgs(args string, into any) error {
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	if err := json.Unmarshal([]byte(args), into); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func toJSON(v any) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(out), nil
}

func listNamespaces(ctx context.Context, client kubernetes.Interface) ([]string, error) {
	list, err := client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	names := make([]string, 0, len(list.Items))
	for _, ns := range list.Items {
		if ns.Name != "" {
			names = append(names, ns.Name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no namespaces found in cluster")
	}
	sort.Strings(names)
	return names, nil
}

func requireNamespace(ctx context.Context, client kubernetes.Interface, namespace string) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	names, err := listNamespaces(ctx, client)
	if err != nil {
		return err
	}
	if !slices.Contains(names, namespace) {
		return fmt.Errorf("namespace '%s' does not exist", namespace)
	}
	return nil
}

func listDeployments(ctx context.Context, client kubernetes.Interface, namespace string) ([]string, error) {
	if err := requireNamespace(ctx, client, namespace); err != nil {
		return nil, err
	}
	list, err := client.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments in namespace '%s': %w", namespace, err)
	}
	names := make([]string, 0, len(list.Items))
	for _, d := range list.Items {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names, nil
}

// labelSelector renders matchLabels as "k=v,..." with keys sorted.
func labelSelector(matchLabels map[string]string) string {
	keys := make([]string, 0, len(matchLabels))
	for k := range matchLabels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + matchLabels[k]
	}
	return strings.Join(parts, ",")
}

// GetAllNamespacesTool implements the get_all_namespaces tool
type GetAllNamespacesTool struct {
	client kubernetes.Interface
}

func NewGetAllNamespacesTool(client kubernetes.Interface) *GetAllNamespacesTool {
	return &GetAllNamespacesTool{client: client}
}

func (t *GetAllNamespacesTool) Name() string {
	return "get_all_namespaces"
}

func (t *GetAllNamespacesTool) Description() string {
	return "List all namespaces in the current cluster. Call this first when the user did not name an exact namespace."
}

func (t *GetAllNamespacesTool) Schema() string {
	return `{"type": "object", "properties": {}}`
}

func (t *GetAllNamespacesTool) SafetyLevel() agent.SafetyLevel {
	return agent.SafetyLevelReadOnly
}

func (t *GetAllNamespacesTool) Execute(ctx context.Context, args string) (string, error) {
	names, err := listNamespaces(ctx, t.client)
	if err != nil {
		return "", err
	}
	return toJSON(names)
}

// GetAllDeploymentsTool implements the get_all_deployments tool
type GetAllDeploymentsTool struct {
	client kubernetes.Interface
}

func NewGetAllDeploymentsTool(client kubernetes.Interface) *GetAllDeploymentsTool {
	return &GetAllDeploymentsTool{client: client}
}

func (t *GetAllDeploymentsTool) Name() string {
	return "get_all_deployments"
}

func (t *GetAllDeploymentsTool) Description() string {
	return "List the deployment names in a namespace. Fails when the namespace does not exist."
}

func (t *GetAllDeploymentsTool) Schema() string {
	return namespaceSchema
}

func (t *GetAllDeploymentsTool) SafetyLevel() agent.SafetyLevel {
	return agent.SafetyLevelReadOnly
}

func (t *GetAllDeploymentsTool) Execute(ctx context.Context, args string) (string, error) {
	var parsedArgs NamespaceArgs
	if err := parseArgs(args, &parsedArgs); err != nil {
		return "", err
	}
	names, err := listDeployments(ctx, t.client, parsedArgs.Namespace)
	if err != nil {
		return "", err
	}
	return toJSON(names)
}

// DeploymentStatus is the result of get_deployment_status.
type DeploymentStatus struct {
	Namespace           string `json:"namespace"`
	Deployment          string `json:"deployment"`
	Replicas            int32  `json:"replicas"`
	ReadyReplicas       int32  `json:"ready_replicas"`
	UpdatedReplicas     int32  `json:"updated_replicas"`
	AvailableReplicas   int32  `json:"available_replicas"`
	UnavailableReplicas int32  `json:"unavailable_replicas"`
}

// GetDeploymentStatusTool implements the get_deployment_status tool
type GetDeploymentStatusTool struct {
	client kubernetes.Interface
}

func NewGetDeploymentStatusTool(client kubernetes.Interface) *GetDeploymentStatusTool {
	return &GetDeploymentStatusTool{client: client}
}

func (t *GetDeploymentStatusTool) Name() string {
	return "get_deployment_status"
}

func (t *GetDeploymentStatusTool) Description() string {
	return "Get live replica counts (ready, updated, available, unavailable) for a deployment."
}

func (t *GetDeploymentStatusTool) Schema() string {
	return deploymentSchema
}

func (t *GetDeploymentStatusTool) SafetyLevel() agent.SafetyLevel {
	return agent.SafetyLevelReadOnly
}

func (t *GetDeploymentStatusTool) Execute(ctx context.Context, args string) (string, error) {
	var parsedArgs DeploymentArgs
	if err := parseArgs(args, &parsedArgs); err != nil {
		return "", err
	}

	dep, err := t.client.AppsV1().Deployments(parsedArgs.Namespace).Get(ctx, parsedArgs.Deployment, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to read deployment status for '%s' in namespace '%s': %w", parsedArgs.Deployment, parsedArgs.Namespace, err)
	}

	return toJSON(statusOf(parsedArgs.Namespace, dep))
}

func statusOf(namespace string, dep *appsv1.Deployment) DeploymentStatus {
	return DeploymentStatus{
		Namespace:           namespace,
		Deployment:          dep.Name,
		Replicas:            dep.Status.Replicas,
		ReadyReplicas:       dep.Status.ReadyReplicas,
		UpdatedReplicas:     dep.Status.UpdatedReplicas,
		AvailableReplicas:   dep.Status.AvailableReplicas,
		UnavailableReplicas: dep.Status.UnavailableReplicas,
	}
}

// GetPodsPerDeploymentTool implements the get_pods_per_deployment tool
type GetPodsPerDeploymentTool struct {
	client kubernetes.Interface
}

func NewGetPodsPerDeploymentTool(client kubernetes.Interface) *GetPodsPerDeploymentTool {
	return &GetPodsPerDeploymentTool{client: client}
}

func (t *GetPodsPerDeploymentTool) Name() string {
	return "get_pods_per_deployment"
}

func (t *GetPodsPerDeploymentTool) Description() string {
	return "List the pod names belonging to a deployment, selected by the deployment's matchLabels."
}

func (t *GetPodsPerDeploymentTool) Schema() string {
	return deploymentSchema
}

func (t *GetPodsPerDeploymentTool) SafetyLevel() agent.SafetyLevel {
	return agent.SafetyLevelReadOnly
}

func (t *GetPodsPerDeploymentTool) Execute(ctx context.Context, args string) (string, error) {
	var parsedArgs DeploymentArgs
	if err := parseArgs(args, &parsedArgs); err != nil {
		return "", err
	}

	dep, err := t.client.AppsV1().Deployments(parsedArgs.Namespace).Get(ctx, parsedArgs.Deployment, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to read deployment '%s' in namespace '%s': %w", parsedArgs.Deployment, parsedArgs.Namespace, err)
	}

	if dep.Spec.Selector == nil || len(dep.Spec.Selector.MatchLabels) == 0 {
		return "", fmt.Errorf("deployment '%s' has no matchLabels selector; cannot list pods", parsedArgs.Deployment)
	}

	pods, err := t.client.CoreV1().Pods(parsedArgs.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labelSelector(dep.Spec.Selector.MatchLabels),
	})
	if err != nil {
		return "", fmt.Errorf("failed to list pods for deployment '%s': %w", parsedArgs.Deployment, err)
	}

	names := make([]string, 0, len(pods.Items))
	for _, p := range pods.Items {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return toJSON(names)
}
