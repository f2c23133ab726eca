package llm

// Google Gemini exposes an OpenAI-compatible API, so GeminiProvider is an
// OpenAIProvider pointed at it.
//
// Reference: https://ai.google.dev/gemini-api/docs/openai
const geminiCompatBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// NewGeminiProvider creates a Gemini LLM provider. An empty baseURL uses the
// public compat endpoint.
func NewGeminiProvider(apiKey, model, baseURL string, opts Options) *OpenAIProvider {
	if baseURL == "" {
		baseURL = geminiCompatBaseURL
	}
	return newOpenAICompatible("gemini", apiKey, model, baseURL, opts)
}
