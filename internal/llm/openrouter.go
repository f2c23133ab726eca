package llm

import (
	"net/http"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	openRouterReferer = "https://github.com/alertagent/alertagent"
	openRouterTitle   = "Alert Agent"
)

// NewOpenRouterProvider creates a provider for OpenRouter's OpenAI-compatible
// API. Requests carry the HTTP-Referer and X-Title attribution headers.
func NewOpenRouterProvider(apiKey, model, baseURL string, opts Options) *OpenAIProvider {
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	client.Transport = &headerTransport{
		base: base.Transport,
		headers: map[string]string{
			"HTTP-Referer": openRouterReferer,
			"X-Title":      openRouterTitle,
		},
	}
	opts.HTTPClient = &client
	return newOpenAICompatible("openrouter", apiKey, model, baseURL, opts)
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
