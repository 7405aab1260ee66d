package llm

import "fmt"

// APIError is a non-200 answer from the inference server
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Ollama error: status %d, body: %s", e.StatusCode, e.Body)
}
