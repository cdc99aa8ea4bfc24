/*
types.go - Gemini REST wire format

Request/response shapes for the v1beta generateContent endpoint. Only the
fields this client reads or writes are modeled.
*/
package gemini

// generateRequest is the POST body for models/{model}:generateContent.
type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// generationConfig pins temperature to 0 for deterministic structured
// output, so the zero value must serialize (no omitempty).
type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

// generateResponse is the subset of the reply the client consumes.
type generateResponse struct {
	Candidates []candidate `json:"candidates"`
	Error      *apiError   `json:"error,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// modelReply is the JSON document the model is instructed to emit.
type modelReply struct {
	StructuredResult *structuredResult `json:"structured_result"`
	DraftMessage     string            `json:"draft_message"`
}

type structuredResult struct {
	Action     string   `json:"action"`
	Quantity   *int     `json:"quantity"`
	Confidence *float64 `json:"confidence"`
	Reasons    []string `json:"reasons"`
}
