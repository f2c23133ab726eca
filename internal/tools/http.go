package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"alertagent/internal/agent"
)

var (
	readMethods  = []string{http.MethodGet, http.MethodHead, http.MethodOptions}
	writeMethods = []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}
)

type HTTPRequestArgs struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    map[string]any    `json:"body,omitempty"`
}

// HTTPResponse is what http_request returns. Body holds decoded JSON when the
// response is JSON and the raw text otherwise.
type HTTPResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       any               `json:"body"`
}

// HTTPRequestTool implements http_request (GET, HEAD, OPTIONS) and, when
// built with NewHTTPWriteTool, the HighRisk http_write_request (POST, PUT,
// DELETE, PATCH).
type HTTPRequestTool struct {
	client  *http.Client
	methods []string
	write   bool
}

func NewHTTPRequestTool(client *http.Client) *HTTPRequestTool {
	return &HTTPRequestTool{client: defaultHTTPClient(client), methods: readMethods}
}

func NewHTTPWriteTool(client *http.Client) *HTTPRequestTool {
	return &HTTPRequestTool{client: defaultHTTPClient(client), methods: writeMethods, write: true}
}

func defaultHTTPClient(client *http.Client) *http.Client {
	if client == nil {
		return &http.Client{Timeout: 30 * time.Second}
	}
	return client
}

func (t *HTTPRequestTool) Name() string {
	if t.write {
		return "http_write_request"
	}
	return "http_request"
}

func (t *HTTPRequestTool) Description() string {
	if t.write {
		return "Send a POST, PUT, DELETE or PATCH request and return the status code, headers and body. Requires approval. Failures are reported as status 500 with an error body."
	}
	return "Make a read-only HTTP request (GET, HEAD, OPTIONS) and return the status code, headers and body. Failures are reported as status 500 with an error body."
}

func (t *HTTPRequestTool) Schema() string {
	enum, _ := json.Marshal(t.methods)
	return fmt.Sprintf(`{
		"type": "object",
		"properties": {
			"url": {
				"type": "string",
				"description": "The url of the request, like https://api.github.com"
			},
			"method": {
				"type": "string",
				"enum": %s,
				"description": "HTTP method, %s by default"
			},
			"headers": {
				"type": "object",
				"description": "Request headers"
			},
			"body": {
				"type": "object",
				"description": "JSON request body"
			}
		},
		"required": ["url"]
	}`, enum, t.methods[0])
}

func (t *HTTPRequestTool) SafetyLevel() agent.SafetyLevel {
	if t.write {
		return agent.SafetyLevelHighRisk
	}
	return agent.SafetyLevelLowRisk
}

func (t *HTTPRequestTool) Execute(ctx context.Context, args string) (string, error) {
	var parsedArgs HTTPRequestArgs
	if err := parseArgs(args, &parsedArgs); err != nil {
		return failed(err), nil
	}
	resp, err := t.do(ctx, parsedArgs)
	if err != nil {
		return failed(err), nil
	}
	return toJSON(resp)
}

func (t *HTTPRequestTool) do(ctx context.Context, args HTTPRequestArgs) (*HTTPResponse, error) {
	method := strings.ToUpper(args.Method)
	if method == "" {
		method = t.methods[0]
	}
	if !slices.Contains(t.methods, method) {
		return nil, fmt.Errorf("method %q is not allowed by %s", args.Method, t.Name())
	}
	if args.URL == "" {
		return nil, fmt.Errorf("url is required")
	}

	var body io.Reader
	if len(args.Body) > 0 {
		raw, err := json.Marshal(args.Body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, args.URL, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range args.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	out := &HTTPResponse{StatusCode: resp.StatusCode, Headers: make(map[string]string, len(resp.Header))}
	for k, v := range resp.Header {
		out.Headers[k] = strings.Join(v, ", ")
	}
	var decoded any
	if len(raw) > 0 && json.Unmarshal(raw, &decoded) == nil {
		out.Body = decoded
	} else {
		out.Body = string(raw)
	}
	return out, nil
}

func failed(err error) string {
	out, _ := json.Marshal(HTTPResponse{
		StatusCode: http.StatusInternalServerError,
		Headers:    map[string]string{},
		Body:       map[string]string{"error": err.Error()},
	})
	return string(out)
}
