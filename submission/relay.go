package submission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrRelayTimeout indica que o destino não respondeu dentro do prazo.
	ErrRelayTimeout = errors.New("relay timeout")
	// ErrRelayRejected indica resposta não-2xx do destino.
	ErrRelayRejected = errors.New("relay rejected submission")
)

// Submission é o que é repassado ao destino: campos higienizados mais metadados.
type Submission struct {
	Form      Form
	ClientIP  string
	At        time.Time
	UserAgent string
}

// Relay entrega inscrições aceitas ao destino (planilha, webhook, etc.).
type Relay interface {
	Forward(ctx context.Context, s Submission) error
}

const (
	defaultRelayTimeout   = 15 * time.Second
	defaultRelayRPS       = 5
	defaultRelayBurst     = 10
	defaultRelayUserAgent = "admission-gateway/1.0"
)

// HTTPRelay faz um POST form-encoded para uma URL fixa.
// Um token bucket limita a vazão de saída para não sobrecarregar o destino.
type HTTPRelay struct {
	url       string
	client    *http.Client
	limiter   *rate.Limiter
	timeout   time.Duration
	userAgent string
}

type RelayOption func(*HTTPRelay)

func WithRelayTimeout(d time.Duration) RelayOption {
	return func(r *HTTPRelay) { r.timeout = d }
}

// WithRelayRate define a vazão de saída. rps <= 0 desliga o limite.
func WithRelayRate(rps float64, burst int) RelayOption {
	return func(r *HTTPRelay) {
		if rps <= 0 {
			r.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithRelayUserAgent(ua string) RelayOption {
	return func(r *HTTPRelay) { r.userAgent = ua }
}

func WithRelayHTTPClient(c *http.Client) RelayOption {
	return func(r *HTTPRelay) { r.client = c }
}

func NewHTTPRelay(rawURL string, opts ...RelayOption) (*HTTPRelay, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("relay url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("relay url: unsupported %q", rawURL)
	}

	r := &HTTPRelay{
		url:       u.String(),
		client:    &http.Client{},
		limiter:   rate.NewLimiter(rate.Limit(defaultRelayRPS), defaultRelayBurst),
		timeout:   defaultRelayTimeout,
		userAgent: defaultRelayUserAgent,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *HTTPRelay) Forward(ctx context.Context, s Submission) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := r.limiter.Wait(ctx); err != nil {
		// Wait desiste antes do prazo quando a vez na fila já passaria dele
		if _, hasDeadline := ctx.Deadline(); hasDeadline && !errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("%w: %v", ErrRelayTimeout, err)
		}
		return classifyRelayErr(ctx, err)
	}

	vals := s.Form.Values()
	vals.Set("submissionIP", s.ClientIP)
	vals.Set("submissionTime", s.At.UTC().Format(time.RFC3339))
	vals.Set("userAgent", s.UserAgent)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, strings.NewReader(vals.Encode()))
	if err != nil {
		return fmt.Errorf("relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return classifyRelayErr(ctx, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrRelayRejected, resp.StatusCode)
	}
	return nil
}

func classifyRelayErr(ctx context.Context, err error) error {
	var ne net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", ErrRelayTimeout, err)
	}
	return fmt.Errorf("relay: %w", err)
}
