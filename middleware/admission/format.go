// utilitários pequenos para escrever respostas HTTP da admissão (JSON, Retry-After).

package admission

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
)

// defaultRetryAfter é usado no header quando a decisão não traz recomendação.
const defaultRetryAfter = "60"

func formatInt(v int) string { return strconv.Itoa(v) }

func retryAfterHeader(seconds int) string {
	if seconds <= 0 {
		return defaultRetryAfter
	}
	return formatInt(seconds)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type throttledBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}
