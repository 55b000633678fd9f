package roshita

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jwalitptl/roshita-planner/pkg/circuitbreaker"
	"github.com/jwalitptl/roshita-planner/pkg/errors"
	"github.com/jwalitptl/roshita-planner/pkg/logger"
	"github.com/jwalitptl/roshita-planner/pkg/metrics"
)

const (
	DefaultBaseURL       = "https://test-roshita.net/api"
	DefaultLogActionPath = "/user-action-logs/"
	defaultTimeout       = 15 * time.Second
	maxErrorBody         = 300
)

type Config struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	LogActionPath  string        `mapstructure:"log_action_path"`
	MaxFailures    int           `mapstructure:"max_failures"`
	BreakerTimeout time.Duration `mapstructure:"breaker_timeout"`
}

// Client talks to the Roshita REST API. Every method takes the caller's
// bearer token; an empty token fails before any I/O.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	logActionPath string
	breaker       *circuitbreaker.CircuitBreaker
	metrics       *metrics.Metrics
	logger        *logger.Logger
}

// Call describes one request for auditing. It is returned even on failure.
type Call struct {
	Method  string
	URL     string
	Payload []byte
	Status  int
}

func NewClient(cfg Config, m *metrics.Metrics, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.LogActionPath == "" {
		cfg.LogActionPath = DefaultLogActionPath
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		baseURL:       NormalizeBaseURL(cfg.BaseURL),
		logActionPath: "/" + strings.Trim(cfg.LogActionPath, "/") + "/",
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "roshita",
			MaxFailures: cfg.MaxFailures,
			Timeout:     cfg.BreakerTimeout,
			IsFailure:   isBackendFailure,
		}),
		metrics: m,
		logger:  log.With("component", "roshita"),
	}
}

// NormalizeBaseURL settles on one scheme and base: https unless the host is
// loopback, no trailing slash.
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultBaseURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimRight(raw, "/")
	}
	if u.Scheme == "http" && !isLoopback(u.Hostname()) {
		u.Scheme = "https"
	}
	return strings.TrimRight(u.String(), "/")
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	token  string
	noAuth bool
	body   interface{}
	out    interface{}
}

func (c *Client) do(ctx context.Context, r request) (*Call, error) {
	endpoint := c.baseURL + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}
	call := &Call{Method: r.method, URL: endpoint}

	if !r.noAuth && strings.TrimSpace(r.token) == "" {
		c.logger.Warn("request aborted, no bearer token", "operation", r.op)
		return call, errors.AuthMissing()
	}

	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return call, errors.Internal(fmt.Errorf("marshal %s request: %w", r.op, err))
		}
		call.Payload = payload
	}

	start := time.Now()
	err := c.breaker.Execute(func() error {
		return c.roundTrip(ctx, r, call)
	})
	if stderrors.Is(err, circuitbreaker.ErrOpen) {
		err = errors.Unavailable(err)
	}

	c.metrics.UpstreamLatency.WithLabelValues(r.op).Observe(time.Since(start).Seconds())
	c.metrics.UpstreamRequests.WithLabelValues(r.op, metrics.Status(err)).Inc()

	if err != nil {
		c.logger.Error(err, "roshita request failed", "operation", r.op, "status", call.Status)
	}
	return call, err
}

func (c *Client) roundTrip(ctx context.Context, r request, call *Call) error {
	var bodyReader io.Reader
	if call.Payload != nil {
		bodyReader = bytes.NewReader(call.Payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, call.URL, bodyReader)
	if err != nil {
		return errors.Internal(fmt.Errorf("build %s request: %w", r.op, err))
	}
	req.Header.Set("Accept", "application/json")
	if call.Payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !r.noAuth {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Network(err)
	}
	defer resp.Body.Close()
	call.Status = resp.StatusCode

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Network(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.HTTPStatus(resp.StatusCode, errorMessage(resp.StatusCode, respBody))
	}

	if r.out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, r.out); err != nil {
		return errors.Decode(err)
	}
	return nil
}

// errorMessage prefers the backend's `detail`/`message`/`error` field.
func errorMessage(status int, body []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"detail", "message", "error"} {
			if v, ok := payload[key].(string); ok && v != "" {
				return v
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return msg
}

// isBackendFailure keeps 4xx answers from tripping the breaker.
func isBackendFailure(err error) bool {
	appErr, ok := errors.As(err)
	if !ok {
		return true
	}
	switch appErr.Kind {
	case errors.KindNetwork:
		return true
	case errors.KindHTTP:
		return appErr.Status >= 500
	}
	return false
}
