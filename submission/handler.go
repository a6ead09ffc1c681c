package submission

import (
	"bytes"
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/domain"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	CodeInvalidContentType = "INVALID_CONTENT_TYPE"
	CodeValidation         = "VALIDATION_ERROR"
	CodeSpam               = "SPAM_DETECTED"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeConfig             = "CONFIG_ERROR"
	CodeTimeout            = "TIMEOUT"
	CodeSubmission         = "SUBMISSION_ERROR"
)

const (
	defaultMaxBodyBytes = 1 << 20
	minUserAgentLen     = 10
)

// campos-isca: invisíveis para pessoas, preenchidos por bots
var honeypotFields = []string{"_honeypot", "website"}

type HandlerOptions struct {
	// Relay nil responde CONFIG_ERROR a toda inscrição válida.
	Relay Relay
	// Abuse recebe os eventos de atividade suspeita; opcional.
	Abuse domain.AbuseTracker
	// ClientFn resolve o cliente; padrão admission.ClientFromRequest.
	ClientFn func(*http.Request) domain.ClientID

	MaxBodyBytes int64
	Validator    *Validator
	Logger       *zerolog.Logger
	Now          func() time.Time
	NewID        func() string
}

type errorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

type successResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	SubmissionID string `json:"submissionId"`
}

// NewHandler atende o POST do formulário de inscrição.
//
// Ordem: tipo de conteúdo -> validação -> honeypot -> User-Agent -> relay.
// Cada recusa relevante alimenta o AbuseTracker com sua categoria.
func NewHandler(opts HandlerOptions) http.Handler {
	if opts.ClientFn == nil {
		opts.ClientFn = admission.ClientFromRequest
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.Validator == nil {
		opts.Validator = NewValidator()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	record := func(client domain.ClientID, c domain.Category) {
		if opts.Abuse != nil {
			opts.Abuse.Record(client, c)
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed", Code: CodeInvalidRequest})
			return
		}

		client := opts.ClientFn(r)
		r.Body = http.MaxBytesReader(w, r.Body, opts.MaxBodyBytes)

		values, typeErrs, err := readValues(r)
		switch {
		case errors.Is(err, errUnsupportedContentType):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Unsupported content type", Code: CodeInvalidContentType})
			return
		case err != nil:
			record(client, domain.CategoryInvalidFormData)
			logger.Info().Err(err).Str("client", string(client)).Msg("unreadable submission body")
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body", Code: CodeInvalidRequest})
			return
		}

		form, err := opts.Validator.Check(FormFromValues(values))
		var verr *ValidationError
		if err != nil && !errors.As(err, &verr) {
			logger.Error().Err(err).Msg("submission validator failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Submission failed. Please try again later.", Code: CodeSubmission})
			return
		}
		if verr != nil || len(typeErrs) > 0 {
			details := typeErrs
			if verr != nil {
				details = append(details, verr.Details...)
			}
			record(client, domain.CategoryInvalidFormData)
			logger.Info().Str("client", string(client)).Strs("details", details).Msg("submission validation failed")
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Validation failed", Code: CodeValidation, Details: details})
			return
		}

		for _, hp := range honeypotFields {
			if strings.TrimSpace(values[hp]) != "" {
				record(client, domain.CategoryHoneypotTriggered)
				logger.Warn().Str("client", string(client)).Msg("honeypot field filled")
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Spam detected", Code: CodeSpam})
				return
			}
		}

		ua := r.UserAgent()
		if len(ua) < minUserAgentLen {
			record(client, domain.CategorySuspiciousUserAgent)
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request", Code: CodeInvalidRequest})
			return
		}

		if opts.Relay == nil {
			logger.Error().Msg("submission relay not configured")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Server configuration error", Code: CodeConfig})
			return
		}

		err = opts.Relay.Forward(r.Context(), Submission{
			Form:      form,
			ClientIP:  string(client),
			At:        opts.Now(),
			UserAgent: ua,
		})
		if err != nil {
			record(client, domain.CategorySubmissionError)
			logger.Error().Err(err).Str("client", string(client)).Msg("submission relay failed")
			if errors.Is(err, ErrRelayTimeout) {
				writeJSON(w, http.StatusRequestTimeout, errorResponse{Error: "Request timeout", Code: CodeTimeout})
				return
			}
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Submission failed. Please try again later.", Code: CodeSubmission})
			return
		}

		logger.Info().Str("client", string(client)).Msg("submission accepted")
		writeJSON(w, http.StatusOK, successResponse{
			Success:      true,
			Message:      "Application submitted successfully",
			SubmissionID: opts.NewID(),
		})
	})
}

var errUnsupportedContentType = errors.New("unsupported content type")

// readValues achata o corpo em chave -> valor. typeErrs lista campos JSON
// que não são texto nem número.
func readValues(r *http.Request) (values map[string]string, typeErrs []string, err error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		return readJSON(r)

	case "multipart/form-data":
		if err := r.ParseMultipartForm(defaultMaxBodyBytes); err != nil {
			return nil, nil, err
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, errUnsupportedContentType
	}

	values = make(map[string]string, len(r.PostForm))
	for k, vs := range r.PostForm {
		if len(vs) > 0 {
			values[k] = vs[0]
		}
	}
	return values, nil, nil
}

func readJSON(r *http.Request) (map[string]string, []string, error) {
	var raw map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, nil, err
	}

	values := make(map[string]string, len(raw))
	var typeErrs []string
	for k, v := range raw {
		switch tv := v.(type) {
		case string:
			values[k] = tv
		case json.Number:
			values[k] = tv.String()
		case nil:
		default:
			if isFormField(k) {
				typeErrs = append(typeErrs, k+" must be a string")
			}
		}
	}
	return values, typeErrs, nil
}

func isFormField(name string) bool {
	var f Form
	for _, fv := range f.fields() {
		if fv.name == name {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
