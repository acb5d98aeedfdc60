package domain

// GenerationConfig is the sampling configuration snapshot fixed at session
// creation. It is immutable for the lifetime of a session.
type GenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"topP"`
	TopK             int     `json:"topK"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMIMEType string  `json:"responseMimeType"`
}

// SafetySetting is one content-safety threshold forwarded to the generative
// backend.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// DefaultGenerationConfig returns the sampling defaults applied to every new
// session.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:      0.0,
		TopP:             0.95,
		TopK:             64,
		MaxOutputTokens:  8192,
		ResponseMIMEType: "text/plain",
	}
}

// DefaultSafetySettings returns the content-safety thresholds applied to
// every new session.
func DefaultSafetySettings() []SafetySetting {
	return []SafetySetting{
		{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_LOW_AND_ABOVE"},
		{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_LOW_AND_ABOVE"},
	}
}
