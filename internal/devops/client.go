// Package devops is an HTTP client for the Azure DevOps REST API covering the
// endpoints the metrics engine reads: projects, repositories, commits,
// changes, diffs, builds, pull requests, work items and code coverage.
package devops

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/config"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/errors"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/logging"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/telemetry"
)

// api-version per endpoint family
const (
	versionGit          = "7.1-preview.1"
	versionProjects     = "7.1-preview.4"
	versionRepositories = "7.1"
	versionBuilds       = "7.1-preview.7"
	versionWIQL         = "7.1-preview.2"
	versionWorkItems    = "7.1-preview.3"
	versionCoverage     = "7.1-preview.1"
)

// maxErrorBody caps how much of a failed response is kept for diagnostics
const maxErrorBody = 512

// Client wraps the REST API with authentication, rate limiting and retries
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	token      string
	maxRetries int
	retryBase  time.Duration
	metrics    *telemetry.Metrics
	logger     logrus.FieldLogger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLimiter replaces the request limiter
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithMetrics records request outcomes and latency
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.logger = logging.Component(l, "devops") }
}

// New creates a client. It carries no token; bind one with WithToken.
func New(cfg config.UpstreamConfig, opts ...Option) *Client {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBaseDelay,
		logger:     logging.Component(nil, "devops"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a copy bound to one caller's token. The copy shares
// the transport, limiter and metrics with c.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// endpointURL joins escaped path segments under the base URL and appends
// the encoded options plus api-version
func (c *Client) endpointURL(segments []string, apiVersion string, opts any) (string, error) {
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}

	values := url.Values{}
	if opts != nil {
		v, err := query.Values(opts)
		if err != nil {
			return "", errors.InternalErrorf("encode query: %v", err)
		}
		values = v
	}
	values.Set("api-version", apiVersion)

	return c.baseURL + "/" + strings.Join(escaped, "/") + "?" + values.Encode(), nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string, out any) error {
	return c.do(ctx, endpoint, http.MethodGet, rawURL, nil, out)
}

func (c *Client) postJSON(ctx context.Context, endpoint, rawURL string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.InternalErrorf("encode %s request: %v", endpoint, err)
	}
	return c.do(ctx, endpoint, http.MethodPost, rawURL, payload, out)
}

// do performs one logical call: limiter wait, request, status mapping and
// retries for transient failures
func (c *Client) do(ctx context.Context, endpoint, method, rawURL string, payload []byte, out any) error {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		retryAfter, err := c.attempt(ctx, endpoint, method, rawURL, payload, out)
		if err == nil {
			return nil
		}
		if !errors.IsTransient(err) || attempt >= c.maxRetries {
			return err
		}

		delay := c.backoff(attempt, retryAfter)
		c.logger.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"attempt":  attempt + 1,
			"delay":    delay,
		}).Warn("transient upstream failure, retrying")

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (c *Client) attempt(ctx context.Context, endpoint, method, rawURL string, payload []byte, out any) (time.Duration, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return 0, errors.InternalErrorf("build %s request: %v", endpoint, err)
	}
	req.Header.Set("Authorization", "Basic "+basicAuth(c.token))
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(endpoint, telemetry.OutcomeError, time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		e := errors.NetworkErrorf(err, "%s request failed", endpoint)
		e.Transient = true
		return 0, e
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		upstreamErr := errors.UpstreamError(resp.StatusCode, endpoint, strings.TrimSpace(string(snippet)))
		c.metrics.ObserveRequest(endpoint, outcomeFor(upstreamErr), time.Since(start))
		return retryAfter(resp.Header.Get("Retry-After")), upstreamErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			c.metrics.ObserveRequest(endpoint, telemetry.OutcomeError, time.Since(start))
			return 0, errors.ExternalErrorf(err, "decode %s response", endpoint).WithStatus(resp.StatusCode)
		}
	}
	c.metrics.ObserveRequest(endpoint, telemetry.OutcomeSuccess, time.Since(start))
	return 0, nil
}

// backoff doubles the base delay per attempt, deferring to Retry-After
// when the upstream asks for longer
func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	delay := time.Duration(float64(c.retryBase) * math.Pow(2, float64(attempt)))
	if retryAfter > delay {
		return retryAfter
	}
	return delay
}

func outcomeFor(err error) string {
	switch {
	case errors.IsAuthorization(err):
		return telemetry.OutcomeAuth
	case errors.IsNotFound(err):
		return telemetry.OutcomeNotFound
	case errors.IsTransient(err):
		return telemetry.OutcomeRetryable
	default:
		return telemetry.OutcomeError
	}
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// basicAuth encodes a PAT as basic credentials with an empty user name
func basicAuth(token string) string {
	return base64.StdEncoding.EncodeToString([]byte(":" + token))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
