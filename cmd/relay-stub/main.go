package main

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Servidor de teste que faz o papel do destino das inscrições (planilha).
// Loga o que chega e responde 200; use RELAY_STUB_FAIL=1 para simular falha.
func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	fail := os.Getenv("RELAY_STUB_FAIL") == "1"

	http.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			logger.Warn().Err(err).Msg("unreadable submission")
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}

		ev := logger.Info().
			Str("user_agent", r.UserAgent()).
			Int("fields", len(r.PostForm))
		for _, k := range []string{"fullName", "email", "yearOfStudy", "selectedRole", "submissionIP", "submissionTime"} {
			ev = ev.Str(k, r.PostForm.Get(k))
		}
		ev.Msg("submission received")

		if fail {
			http.Error(w, "relay stub failure", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"success"}` + "\n"))
	})

	addr := ":8082"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	logger.Info().Str("addr", addr).Msg("relay stub listening, POST /submit")
	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Fatal().Err(err).Msg("relay stub stopped")
	}
}
