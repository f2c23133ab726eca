package tools

import (
	"context"
	"errors"

	"k8s.io/client-go/kubernetes"

	"alertagent/internal/agent"
)

// ErrNoCluster is returned by InternalProvider when no cluster is configured.
var ErrNoCluster = errors.New("kubernetes client not configured")

// InternalProvider provides the built-in Kubernetes tools
type InternalProvider struct {
	client kubernetes.Interface
}

// NewInternalProvider creates a new internal tool provider. A nil client
// makes ListTools fail so the router skips the provider.
func NewInternalProvider(client kubernetes.Interface) *InternalProvider {
	return &InternalProvider{
		client: client,
	}
}

// ListTools returns the list of internal tools
func (p *InternalProvider) ListTools(ctx context.Context) ([]agent.Tool, error) {
	if p.client == nil {
		return nil, ErrNoCluster
	}
	return K8sTools(p.client), nil
}
