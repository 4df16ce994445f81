package models

// ChatRequest is the payload sent to the chat endpoint.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse carries the model's Markdown reply.
type ChatResponse struct {
	Text string `json:"text"`
}

// ErrorResponse is returned for every non-2xx reply.
// Details is only set for server-side failures.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
