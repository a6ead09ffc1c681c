package admission

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"admission-gateway/middleware/admission/domain"
)

// ClassifyFunc escolhe a classe de tráfego da requisição.
type ClassifyFunc func(r *http.Request) domain.Profile

// Route é um par método + path exato (ex.: "POST /api/submit").
// Method vazio casa com qualquer método.
type Route struct {
	Method string
	Path   string
}

func (rt Route) String() string { return strings.TrimSpace(rt.Method + " " + rt.Path) }

func (rt Route) Match(r *http.Request) bool {
	if rt.Method != "" && !strings.EqualFold(rt.Method, r.Method) {
		return false
	}
	return r.URL.Path == rt.Path
}

// ParseRoutes lê uma lista separada por vírgula: "POST /api/submit, /api/upload".
func ParseRoutes(s string) ([]Route, error) {
	var out []Route
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Fields(part)
		switch len(fields) {
		case 1:
			out = append(out, Route{Path: fields[0]})
		case 2:
			out = append(out, Route{Method: strings.ToUpper(fields[0]), Path: fields[1]})
		default:
			return nil, fmt.Errorf("invalid route %q", part)
		}
	}
	for _, rt := range out {
		if !strings.HasPrefix(rt.Path, "/") {
			return nil, fmt.Errorf("route path must start with /: %q", rt.String())
		}
	}
	return out, nil
}

// RouteClassifier: rotas sensíveis recebem o perfil sensível, o resto o geral.
func RouteClassifier(sensitive []Route) ClassifyFunc {
	return func(r *http.Request) domain.Profile {
		for _, rt := range sensitive {
			if rt.Match(r) {
				return domain.ProfileSensitive
			}
		}
		return domain.ProfileGeneral
	}
}

// SuspicionFunc aplica heurísticas sobre metadados da requisição.
type SuspicionFunc func(r *http.Request) bool

var (
	suspiciousUA = []*regexp.Regexp{
		regexp.MustCompile(`(?i)bot|crawler|spider|scraper`),
		regexp.MustCompile(`(?i)curl|wget|python|php`),
		regexp.MustCompile(`(?i)sql|script|alert|eval`),
	}
	suspiciousPath = []*regexp.Regexp{
		regexp.MustCompile(`(?i)/wp-`),
		regexp.MustCompile(`(?i)/admin`),
		regexp.MustCompile(`(?i)\.php$`),
		regexp.MustCompile(`(?i)\.asp$`),
		regexp.MustCompile(`(?i)\.jsp$`),
		regexp.MustCompile(`(?i)/config`),
	}
)

// DefaultSuspicion marca UA vazio ou de ferramenta/bot, paths de scanner e
// qualquer /api/... fora de exemptPaths.
func DefaultSuspicion(exemptPaths ...string) SuspicionFunc {
	exempt := make(map[string]struct{}, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[strings.ToLower(p)] = struct{}{}
	}

	return func(r *http.Request) bool {
		ua := r.Header.Get("User-Agent")
		if ua == "" {
			return true
		}
		for _, re := range suspiciousUA {
			if re.MatchString(ua) {
				return true
			}
		}

		path := r.URL.Path
		for _, re := range suspiciousPath {
			if re.MatchString(path) {
				return true
			}
		}
		// caixa ignorada dos dois lados: /API/submit é o mesmo caminho que /api/submit
		if lower := strings.ToLower(path); strings.Contains(lower, "/api/") {
			if _, ok := exempt[lower]; !ok {
				return true
			}
		}
		return false
	}
}
