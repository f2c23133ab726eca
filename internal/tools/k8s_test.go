package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	autoscalingv1 "k8s.io/api/autoscaling/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"alertagent/internal/agent"
)

func namespace(name string) *corev1.Namespace {
	return &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name}}
}

func deployment(ns, name string, labels map[string]string) *appsv1.Deployment {
	d := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns},
		Status: appsv1.DeploymentStatus{
			Replicas:            3,
			ReadyReplicas:       2,
			UpdatedReplicas:     3,
			AvailableReplicas:   2,
			UnavailableReplicas: 1,
		},
	}
	if labels != nil {
		d.Spec.Selector = &metav1.LabelSelector{MatchLabels: labels}
	}
	return d
}

func pod(ns, name string, labels map[string]string, containers ...string) *corev1.Pod {
	p := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns, Labels: labels}}
	for _, c := range containers {
		p.Spec.Containers = append(p.Spec.Containers, corev1.Container{Name: c})
	}
	return p
}

func mustExecute(t *testing.T, tool agent.Tool, args any) string {
	t.Helper()
	raw, _ := json.Marshal(args)
	out, err := tool.Execute(context.Background(), string(raw))
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", tool.Name(), err)
	}
	return out
}

func TestK8sTools_Metadata(t *testing.T) {
	for _, tool := range K8sTools(fake.NewSimpleClientset()) {
		if !json.Valid([]byte(tool.Schema())) {
			t.Errorf("%s: schema is not valid JSON", tool.Name())
		}
		want := agent.SafetyLevelReadOnly
		if tool.Name() == "set_deployment_replicas" {
			want = agent.SafetyLevelHighRisk
		}
		if tool.SafetyLevel() != want {
			t.Errorf("%s: expected %s, got %s", tool.Name(), want, tool.SafetyLevel())
		}
	}
}

func TestGetAllNamespacesTool(t *testing.T) {
	t.Run("should list namespaces sorted", func(t *testing.T) {
		client := fake.NewSimpleClientset(namespace("prod"), namespace("default"))
		out := mustExecute(t, NewGetAllNamespacesTool(client), struct{}{})
		if out != `["default","prod"]` {
			t.Fatalf("unexpected result: %s", out)
		}
	})

	t.Run("should fail on an empty cluster", func(t *testing.T) {
		_, err := NewGetAllNamespacesTool(fake.NewSimpleClientset()).Execute(context.Background(), "")
		if err == nil || !strings.Contains(err.Error(), "no namespaces") {
			t.Fatalf("expected no namespaces error, got %v", err)
		}
	})
}

func TestGetAllDeploymentsTool(t *testing.T) {
	client := fake.NewSimpleClientset(
		namespace("shop"),
		deployment("shop", "web", nil),
		deployment("shop", "api", nil),
		deployment("other", "worker", nil),
	)
	tool := NewGetAllDeploymentsTool(client)

	t.Run("should list deployments of the namespace", func(t *testing.T) {
		out := mustExecute(t, tool, NamespaceArgs{Namespace: "shop"})
		if out != `["api","web"]` {
			t.Fatalf("unexpected result: %s", out)
		}
	})

	t.Run("should reject an unknown namespace", func(t *testing.T) {
		_, err := tool.Execute(context.Background(), `{"namespace":"other"}`)
		if err == nil || !strings.Contains(err.Error(), "does not exist") {
			t.Fatalf("expected namespace error, got %v", err)
		}
	})

	t.Run("should reject invalid JSON", func(t *testing.T) {
		if _, err := tool.Execute(context.Background(), "{"); err == nil {
			t.Fatal("expected invalid arguments error")
		}
	})
}

func TestGetDeploymentStatusTool(t *testing.T) {
	client := fake.NewSimpleClientset(deployment("shop", "web", nil))
	tool := NewGetDeploymentStatusTool(client)

	out := mustExecute(t, tool, DeploymentArgs{Namespace: "shop", Deployment: "web"})
	var status DeploymentStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	want := DeploymentStatus{Namespace: "shop", Deployment: "web", Replicas: 3, ReadyReplicas: 2, UpdatedReplicas: 3, AvailableReplicas: 2, UnavailableReplicas: 1}
	if status != want {
		t.Errorf("expected %+v, got %+v", want, status)
	}
	for _, key := range []string{`"ready_replicas"`, `"unavailable_replicas"`} {
		if !strings.Contains(out, key) {
			t.Errorf("expected key %s in %s", key, out)
		}
	}

	if _, err := tool.Execute(context.Background(), `{"namespace":"shop","deployment":"missing"}`); err == nil {
		t.Error("expected error for a missing deployment")
	}
}

func TestGetPodsPerDeploymentTool(t *testing.T) {
	client := fake.NewSimpleClientset(
		deployment("shop", "web", map[string]string{"app": "web", "tier": "frontend"}),
		deployment("shop", "bare", nil),
		pod("shop", "web-1", map[string]string{"app": "web", "tier": "frontend"}, "main"),
		pod("shop", "web-2", map[string]string{"app": "web", "tier": "frontend", "extra": "x"}, "main"),
		pod("shop", "api-1", map[string]string{"app": "api"}, "main"),
	)
	tool := NewGetPodsPerDeploymentTool(client)

	t.Run("should select pods by matchLabels", func(t *testing.T) {
		out := mustExecute(t, tool, DeploymentArgs{Namespace: "shop", Deployment: "web"})
		if out != `["web-1","web-2"]` {
			t.Fatalf("unexpected result: %s", out)
		}
	})

	t.Run("should fail without matchLabels", func(t *testing.T) {
		_, err := tool.Execute(context.Background(), `{"namespace":"shop","deployment":"bare"}`)
		if err == nil || !strings.Contains(err.Error(), "no matchLabels") {
			t.Fatalf("expected selector error, got %v", err)
		}
	})
}

func TestLabelSelector(t *testing.T) {
	got := labelSelector(map[string]string{"tier": "frontend", "app": "web"})
	if got != "app=web,tier=frontend" {
		t.Errorf("unexpected selector %q", got)
	}
}

func logOptions(t *testing.T, client *fake.Clientset) *corev1.PodLogOptions {
	t.Helper()
	for _, a := range client.Actions() {
		if a.GetSubresource() != "log" {
			continue
		}
		if g, ok := a.(k8stesting.GenericAction); ok {
			if opts, ok := g.GetValue().(*corev1.PodLogOptions); ok {
				return opts
			}
		}
	}
	t.Fatal("no log request recorded")
	return nil
}

func TestGetPodLogsTool(t *testing.T) {
	crashing := pod("shop", "web-1", nil, "main")
	crashing.Status.ContainerStatuses = []corev1.ContainerStatus{{
		Name:  "main",
		State: corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{Reason: "CrashLoopBackOff"}},
	}}
	restarted := pod("shop", "web-2", nil, "main")
	restarted.Status.ContainerStatuses = []corev1.ContainerStatus{{Name: "main", RestartCount: 2}}
	healthy := pod("shop", "web-3", nil, "main")
	sidecar := pod("shop", "web-4", nil, "main", "proxy")

	newClient := func() *fake.Clientset {
		return fake.NewSimpleClientset(namespace("shop"), crashing, restarted, healthy, sidecar)
	}

	t.Run("should fetch logs of a healthy pod", func(t *testing.T) {
		client := newClient()
		out := mustExecute(t, NewGetPodLogsTool(client), PodLogsArgs{Namespace: "shop", Pod: "web-3"})
		if out != "fake logs" {
			t.Fatalf("unexpected logs %q", out)
		}
		opts := logOptions(t, client)
		if opts.Previous || !opts.Timestamps || opts.TailLines == nil || *opts.TailLines != 1000 || opts.Container != "main" {
			t.Errorf("unexpected log options %+v", opts)
		}
	})

	t.Run("should use previous logs after a crash", func(t *testing.T) {
		for _, name := range []string{"web-1", "web-2"} {
			client := newClient()
			mustExecute(t, NewGetPodLogsTool(client), PodLogsArgs{Namespace: "shop", Pod: name})
			if !logOptions(t, client).Previous {
				t.Errorf("%s: expected previous logs", name)
			}
		}
	})

	t.Run("should honor an explicit previous flag", func(t *testing.T) {
		client := newClient()
		mustExecute(t, NewGetPodLogsTool(client), map[string]any{"namespace": "shop", "pod": "web-2", "previous": false})
		if logOptions(t, client).Previous {
			t.Error("expected current logs")
		}
	})

	t.Run("should refuse multi-container pods", func(t *testing.T) {
		_, err := NewGetPodLogsTool(newClient()).Execute(context.Background(), `{"namespace":"shop","pod":"web-4"}`)
		if err == nil || !strings.Contains(err.Error(), "2 containers") {
			t.Fatalf("expected container count error, got %v", err)
		}
	})

	t.Run("should validate the namespace", func(t *testing.T) {
		_, err := NewGetPodLogsTool(newClient()).Execute(context.Background(), `{"namespace":"nope","pod":"web-3"}`)
		if err == nil {
			t.Fatal("expected namespace error")
		}
	})
}

func TestSetDeploymentReplicasTool(t *testing.T) {
	newClient := func() (*fake.Clientset, **autoscalingv1.Scale) {
		client := fake.NewSimpleClientset(namespace("shop"), deployment("shop", "web", nil))
		var got *autoscalingv1.Scale
		client.PrependReactor("update", "deployments", func(action k8stesting.Action) (bool, runtime.Object, error) {
			if action.GetSubresource() != "scale" {
				return false, nil, nil
			}
			got = action.(k8stesting.UpdateAction).GetObject().(*autoscalingv1.Scale)
			return true, got, nil
		})
		return client, &got
	}

	t.Run("should update the scale subresource", func(t *testing.T) {
		client, got := newClient()
		out := mustExecute(t, NewSetDeploymentReplicasTool(client), SetReplicasArgs{Namespace: "shop", Deployment: "web", Replicas: 5})
		if !strings.Contains(out, "5 replicas") {
			t.Fatalf("unexpected result: %s", out)
		}
		if *got == nil || (*got).Spec.Replicas != 5 || (*got).Name != "web" {
			t.Fatalf("expected scale to 5, got %+v", *got)
		}
	})

	t.Run("should validate namespace and deployment first", func(t *testing.T) {
		client, got := newClient()
		tool := NewSetDeploymentReplicasTool(client)
		for _, args := range []string{
			`{"namespace":"nope","deployment":"web","replicas":1}`,
			`{"namespace":"shop","deployment":"nope","replicas":1}`,
			`{"namespace":"shop","deployment":"web","replicas":-1}`,
		} {
			if _, err := tool.Execute(context.Background(), args); err == nil {
				t.Errorf("expected error for %s", args)
			}
		}
		if *got != nil {
			t.Error("scale must not be called when validation fails")
		}
	})
}
