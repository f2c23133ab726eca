package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"alertagent/internal/agent"
	"alertagent/internal/alert"
	"alertagent/internal/history"
	"alertagent/internal/llm"
	"alertagent/internal/pipeline"
	"alertagent/internal/tools"
)

func TestAPI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "API Server Suite")
}

type fakePipeline struct {
	mu      sync.Mutex
	store   *history.MemoryStore
	running bool
	runErr  error
	calls   []pipeline.RunOptions
	health  alert.HealthCheck
}

func (f *fakePipeline) Run(ctx context.Context, opts pipeline.RunOptions) (*alert.ProcessingResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	err := f.runErr
	f.mu.Unlock()
	if errors.Is(err, pipeline.ErrAlreadyRunning) {
		return nil, err
	}
	result := &alert.ProcessingResult{ExecutionID: "exec-1", StartedAt: time.Now(), DryRun: opts.DryRun}
	if err != nil {
		result.Finish(alert.ProcessingFailed, err)
	} else {
		result.Finish(alert.ProcessingCompleted, nil)
	}
	_ = f.store.Save(ctx, result)
	return result, err
}

func (f *fakePipeline) Health(context.Context) alert.HealthCheck { return f.health }
func (f *fakePipeline) History() history.Store                    { return f.store }
func (f *fakePipeline) Running() bool                             { return f.running }

func (f *fakePipeline) Calls() []pipeline.RunOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.RunOptions(nil), f.calls...)
}

type fakeScheduler struct{ next time.Time }

func (f fakeScheduler) NextRun() time.Time { return f.next }
func (f fakeScheduler) Spec() string       { return "0 9 * * *" }

type fakeAssistant struct {
	err      error
	profile  string
	approved bool
}

func (f *fakeAssistant) Ask(_ context.Context, profile, question string, approved bool) (*agent.Result, error) {
	f.profile, f.approved = profile, approved
	if f.err != nil {
		return nil, f.err
	}
	return &agent.Result{Answer: "echo: " + question, Profile: profile}, nil
}

func (f *fakeAssistant) Profiles() []agent.Profile {
	return []agent.Profile{{Name: "k8s_helper"}, {Name: "grafana_alerts"}}
}

type staticProvider []agent.Tool

func (p staticProvider) ListTools(context.Context) ([]agent.Tool, error) { return p, nil }

func do(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(rr *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	ExpectWithOffset(1, json.Unmarshal(rr.Body.Bytes(), &out)).To(Succeed())
	return out
}

var _ = Describe("API Server", func() {
	var (
		fp        *fakePipeline
		assistant *fakeAssistant
		server    *Server
		handler   http.Handler
	)

	BeforeEach(func() {
		fp = &fakePipeline{
			store:  history.NewMemoryStore(10),
			health: alert.HealthCheck{Status: alert.HealthHealthy, Version: "test"},
		}
		assistant = &fakeAssistant{}

		router := tools.NewRouter(nil)
		router.AddProvider(staticProvider{
			&agent.MockTool{NameVal: "get_all_namespaces", Safety: agent.SafetyLevelReadOnly},
			&agent.MockTool{NameVal: "set_deployment_replicas", Safety: agent.SafetyLevelHighRisk},
		})

		server = NewServer(fp, router, ":0", logr.Discard()).
			WithScheduler(fakeScheduler{next: time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)}).
			WithAssistant(assistant)
		handler = server.Handler()
	})

	Context("Health", func() {
		It("should answer healthz", func() {
			rr := do(handler, "GET", "/healthz", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(Equal("ok"))
		})

		It("should return 503 on a deep check when unhealthy", func() {
			fp.health.Status = alert.HealthUnhealthy
			rr := do(handler, "GET", "/healthz?deep=true", nil)
			Expect(rr.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(decode(rr)).To(HaveKeyWithValue("status", "unhealthy"))
		})

		It("should expose prometheus metrics", func() {
			rr := do(handler, "GET", "/metrics", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
		})
	})

	Context("Status", func() {
		It("should report the schedule without a previous run", func() {
			rr := do(handler, "GET", "/api/v1/status", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			body := decode(rr)
			Expect(body).To(HaveKeyWithValue("running", false))
			Expect(body).To(HaveKeyWithValue("schedule", "0 9 * * *"))
			Expect(body).To(HaveKeyWithValue("next_run", "2026-01-02T09:00:00Z"))
			Expect(body).NotTo(HaveKey("last_run"))
		})

		It("should include the last run", func() {
			_, _ = fp.Run(context.Background(), pipeline.RunOptions{})
			body := decode(do(handler, "GET", "/api/v1/status", nil))
			Expect(body).To(HaveKey("last_run"))
			Expect(body["last_run"]).To(HaveKeyWithValue("execution_id", "exec-1"))
		})
	})

	Context("Runs", func() {
		It("should run synchronously when asked to wait", func() {
			rr := do(handler, "POST", "/api/v1/runs", map[string]interface{}{"dry_run": true, "wait": true})
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(decode(rr)).To(HaveKeyWithValue("dry_run", true))
			Expect(fp.Calls()).To(ConsistOf(pipeline.RunOptions{DryRun: true}))
		})

		It("should accept background runs", func() {
			rr := do(handler, "POST", "/api/v1/runs", nil)
			Expect(rr.Code).To(Equal(http.StatusAccepted))
			Eventually(fp.Calls).Should(HaveLen(1))
		})

		It("should conflict while a run is in progress", func() {
			fp.running = true
			rr := do(handler, "POST", "/api/v1/runs", nil)
			Expect(rr.Code).To(Equal(http.StatusConflict))
			Expect(fp.Calls()).To(BeEmpty())
		})

		It("should conflict when the run lock is lost to another run", func() {
			fp.runErr = pipeline.ErrAlreadyRunning
			rr := do(handler, "POST", "/api/v1/runs", map[string]interface{}{"wait": true})
			Expect(rr.Code).To(Equal(http.StatusConflict))
		})

		It("should return the failed result with 500", func() {
			fp.runErr = errors.New("slack down")
			rr := do(handler, "POST", "/api/v1/runs", map[string]interface{}{"wait": true})
			Expect(rr.Code).To(Equal(http.StatusInternalServerError))
			Expect(decode(rr)).To(HaveKeyWithValue("error_message", "slack down"))
		})

		It("should reject bad lookback values", func() {
			rr := do(handler, "POST", "/api/v1/runs", map[string]interface{}{"lookback_hours": 500})
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("should list recorded runs", func() {
			_, _ = fp.Run(context.Background(), pipeline.RunOptions{})
			_, _ = fp.Run(context.Background(), pipeline.RunOptions{DryRun: true})

			rr := do(handler, "GET", "/api/v1/runs?limit=1", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(decode(rr)).To(HaveKeyWithValue("total", BeNumerically("==", 1)))

			Expect(do(handler, "GET", "/api/v1/runs?limit=abc", nil).Code).To(Equal(http.StatusBadRequest))
		})
	})

	Context("Alert webhook", func() {
		It("should not be routed without a handler", func() {
			rr := do(handler, "POST", "/api/v1/alerts/webhook", map[string]interface{}{})
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})

		It("should buffer firing alerts", func() {
			buffer := alert.NewBuffer(time.Hour, time.Minute, logr.Discard())
			handler = server.WithAlertHandler(alert.NewHandler(buffer, logr.Discard())).Handler()

			payload := map[string]interface{}{
				"receiver": "alertagent",
				"alerts": []map[string]interface{}{
					{
						"status":   "firing",
						"labels":   map[string]string{"alertname": "HighCPU", "severity": "critical", "service": "api"},
						"startsAt": time.Now().UTC().Format(time.RFC3339),
					},
					{
						"status": "resolved",
						"labels": map[string]string{"alertname": "DiskFull"},
					},
				},
			}
			rr := do(handler, "POST", "/api/v1/alerts/webhook", payload)
			Expect(rr.Code).To(Equal(http.StatusAccepted))
			Expect(buffer.Len()).To(Equal(1))
		})
	})

	Context("Tools", func() {
		It("should describe every routed tool", func() {
			rr := do(handler, "GET", "/api/v1/tools", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))

			var body struct {
				Items []tools.Info `json:"items"`
				Total int          `json:"total"`
			}
			Expect(json.Unmarshal(rr.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Total).To(Equal(2))
			Expect(body.Items[0].Name).To(Equal("get_all_namespaces"))
			Expect(body.Items[1].SafetyLevel).To(Equal(agent.SafetyLevelHighRisk))
		})
	})

	Context("Agents", func() {
		It("should list profiles", func() {
			body := decode(do(handler, "GET", "/api/v1/agents", nil))
			Expect(body).To(HaveKeyWithValue("total", BeNumerically("==", 2)))
		})

		It("should ask a named profile", func() {
			rr := do(handler, "POST", "/api/v1/agents/k8s_helper/ask", map[string]interface{}{"question": "list namespaces", "approved": true})
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(decode(rr)).To(HaveKeyWithValue("answer", "echo: list namespaces"))
			Expect(assistant.profile).To(Equal("k8s_helper"))
			Expect(assistant.approved).To(BeTrue())
		})

		It("should let auto pick the profile", func() {
			do(handler, "POST", "/api/v1/agents/auto/ask", map[string]interface{}{"question": "q"})
			Expect(assistant.profile).To(BeEmpty())
		})

		It("should reject an empty question", func() {
			rr := do(handler, "POST", "/api/v1/agents/k8s_helper/ask", map[string]interface{}{})
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("should map unknown profiles to 404", func() {
			assistant.err = agent.ErrUnknownProfile
			rr := do(handler, "POST", "/api/v1/agents/nope/ask", map[string]interface{}{"question": "q"})
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})

		It("should report tools waiting for approval", func() {
			assistant.err = &agent.ErrWaitingForApproval{ToolName: "set_deployment_replicas"}
			rr := do(handler, "POST", "/api/v1/agents/k8s_helper/ask", map[string]interface{}{"question": "scale web to 0"})
			Expect(rr.Code).To(Equal(http.StatusAccepted))
			Expect(decode(rr)).To(HaveKeyWithValue("tool", "set_deployment_replicas"))
		})

		It("should be unavailable without an assistant", func() {
			h := NewServer(fp, nil, ":0", logr.Discard()).Handler()
			rr := do(h, "POST", "/api/v1/agents/k8s_helper/ask", map[string]interface{}{"question": "q"})
			Expect(rr.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(decode(do(h, "GET", "/api/v1/tools", nil))).To(HaveKeyWithValue("total", BeNumerically("==", 0)))
		})
	})

	Context("LLM ping", func() {
		It("should be unavailable without a router", func() {
			rr := do(handler, "POST", "/api/v1/llm/ping", nil)
			Expect(rr.Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("should report provider errors with 200", func() {
			good := &agent.MockLLMProvider{Responses: map[int]*agent.Message{0: {Type: agent.MessageTypeAssistant, Content: "pong"}}}
			r, err := llm.NewRouter(map[string]agent.LLMProvider{"mock": good}, "mock")
			Expect(err).NotTo(HaveOccurred())
			h := server.WithLLMRouter(r).Handler()

			rr := do(h, "POST", "/api/v1/llm/ping", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(decode(rr)).To(HaveKeyWithValue("status", "ok"))

			rr = do(h, "POST", "/api/v1/llm/ping", map[string]string{"provider": "gemini"})
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})
	})
})
