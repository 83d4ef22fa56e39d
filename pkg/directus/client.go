// Package directus is a client for the Directus REST API: items, collections,
// fields, relations, users, files and assets.
package directus

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/reise69/directus-go-sdk/pkg/cache"
	"github.com/reise69/directus-go-sdk/pkg/core/query"
	"github.com/reise69/directus-go-sdk/pkg/core/sqlfilter"
	"github.com/reise69/directus-go-sdk/pkg/resilience"
	"github.com/reise69/directus-go-sdk/pkg/retry"
)

// MethodSearch is the HTTP verb Directus accepts for queries sent in the body.
const MethodSearch = "SEARCH"

const defaultTimeout = 30 * time.Second

// Client talks to one Directus instance. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	insecure   bool

	limiter   *rate.Limiter
	cache     cache.Cache
	segments  map[string]bool
	logger    zerolog.Logger
	metrics   *Metrics
	retryCfg  retry.Config
	retryer   *retry.Retryer
	cbCfg     resilience.Config
	breaker   *resilience.Breaker
	converter *sqlfilter.Converter
	now       func() time.Time

	mu        sync.Mutex
	auth      session
	refreshMu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithToken authenticates every request with a static access token.
func WithToken(token string) Option {
	return func(c *Client) { c.auth = session{access: token} }
}

// WithHTTPClient replaces the HTTP client. WithTimeout and
// WithInsecureSkipVerify do not modify a client supplied here.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithInsecureSkipVerify disables TLS certificate checks.
func WithInsecureSkipVerify() Option {
	return func(c *Client) { c.insecure = true }
}

// WithRateLimit caps outgoing requests at rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCache caches GET responses of the schema endpoints. Without segments it
// caches collections, fields and relations.
func WithCache(store cache.Cache, segments ...string) Option {
	return func(c *Client) {
		if len(segments) == 0 {
			segments = []string{"collections", "fields", "relations"}
		}
		c.cache = store
		c.segments = make(map[string]bool, len(segments))
		for _, s := range segments {
			c.segments[s] = true
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRetry retries transient failures (no response, 5xx, 429). A config
// without a Retryable predicate gets one matching those failures.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retryCfg = cfg }
}

// WithCircuitBreaker stops sending requests after repeated transient
// failures until cfg.Timeout has passed. A config without an IsFailure
// predicate counts the failures WithRetry retries.
func WithCircuitBreaker(cfg resilience.Config) Option {
	return func(c *Client) { c.cbCfg = cfg }
}

// WithConverter sets the SQL converter used by ItemsSQL.
func WithConverter(conv *sqlfilter.Converter) Option {
	return func(c *Client) { c.converter = conv }
}

// New creates a client for the Directus instance at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	c := &Client{
		baseURL:  u,
		timeout:  defaultTimeout,
		logger:   log.Logger,
		retryCfg: retry.DefaultConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if c.insecure {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		c.httpClient = &http.Client{Timeout: c.timeout, Transport: transport}
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	if c.converter == nil {
		c.converter = sqlfilter.NewConverter(sqlfilter.WithLogger(c.logger))
	}
	if c.retryCfg.Retryable == nil {
		c.retryCfg.Retryable = transient
	}
	if c.cbCfg.Enabled {
		if c.cbCfg.IsFailure == nil {
			c.cbCfg.IsFailure = transient
		}
		if c.breaker, err = resilience.New(c.cbCfg, c.logger); err != nil {
			return nil, err
		}
	}
	c.retryer, err = retry.NewRetryer(c.retryCfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close flushes the retry dead letter queue.
func (c *Client) Close() error {
	return c.retryer.Close()
}

// DLQ returns the dead letter queue of failed bulk writes, nil when disabled.
func (c *Client) DLQ() *retry.DLQ {
	return c.retryer.DLQ()
}

// URL returns the absolute URL for an API path.
func (c *Client) URL(p string, params url.Values) string {
	u := *c.baseURL
	u.Path = joinPath(c.baseURL.Path, p)
	u.RawQuery = params.Encode()
	return u.String()
}

// joinPath appends p to base with exactly one slash between segments.
func joinPath(base, p string) string {
	cleaned := path.Clean("/" + strings.Trim(p, "/"))
	if cleaned == "/" {
		cleaned = ""
	}
	return strings.TrimRight(base, "/") + cleaned
}

// request describes one API call. body is encoded up front so retries can
// resend it.
type request struct {
	method      string
	path        string
	params      url.Values
	body        []byte
	contentType string
	expect      []int
	anonymous   bool
}

func newRequest(method, p string, body any, expect ...int) (request, error) {
	r := request{method: method, path: p, expect: expect}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return r, fmt.Errorf("marshal %s %s body: %w", method, p, err)
		}
		r.body = data
		r.contentType = "application/json"
	}
	return r, nil
}

// envelope is the shape of every Directus JSON response.
type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []ErrorDetail   `json:"errors"`
}

// call runs r and decodes the data member of the response into out.
func (c *Client) call(ctx context.Context, r request, out any) error {
	payload, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	return decode(r, payload, out)
}

func decode(r request, payload []byte, out any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("decode %s %s response: %w", r.method, r.path, err)
	}
	if len(env.Errors) > 0 {
		return &APIError{StatusCode: http.StatusOK, Method: r.method, Path: r.path, Errors: env.Errors}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s data: %w", r.method, r.path, err)
	}
	return nil
}

// do runs r through the cache and the retryer and returns the raw body.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	segment := c.segment(r.path)

	var key string
	if r.method == http.MethodGet && segment != "" {
		key = cache.Key(segment, r.path+"?"+r.params.Encode())
		data, ok, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			c.metrics.cache(segment, "error")
			c.logger.Warn().Err(err).Str("path", r.path).Msg("cache lookup failed")
		case ok:
			c.metrics.cache(segment, "hit")
			return data, nil
		default:
			c.metrics.cache(segment, "miss")
		}
	}

	var payload []byte
	err := c.retryer.Do(ctx, func(ctx context.Context) error {
		var err error
		payload, err = c.send(ctx, r)
		return err
	})
	if err != nil {
		return nil, err
	}

	switch {
	case key != "":
		if err := c.cache.Set(ctx, key, payload); err != nil {
			c.logger.Warn().Err(err).Str("path", r.path).Msg("cache store failed")
		}
	case r.method != http.MethodGet && r.method != MethodSearch:
		c.invalidate(ctx, r.path)
	}
	return payload, nil
}

// segment returns the cached endpoint segment of p, or "" when p is not cached.
func (c *Client) segment(p string) string {
	if c.cache == nil {
		return ""
	}
	s, _, _ := strings.Cut(strings.TrimLeft(p, "/"), "/")
	if c.segments[s] {
		return s
	}
	return ""
}

// invalidate drops cached schema after a write. Collection changes also drop
// fields and relations.
func (c *Client) invalidate(ctx context.Context, p string) {
	segment := c.segment(p)
	if segment == "" {
		return
	}
	targets := []string{segment}
	if segment == "collections" {
		targets = append(targets, "fields", "relations")
	}
	for _, s := range targets {
		if !c.segments[s] {
			continue
		}
		if err := c.cache.Invalidate(ctx, s); err != nil {
			c.logger.Warn().Err(err).Str("segment", s).Msg("cache invalidation failed")
		}
	}
}

// send performs one attempt and returns the body of an expected response.
func (c *Client) send(ctx context.Context, r request) ([]byte, error) {
	resp, err := c.open(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %s", ErrUnavailable, r.method, r.path, err.Error())
	}
	return data, nil
}

// open sends r through the circuit breaker, if any.
func (c *Client) open(ctx context.Context, r request) (*http.Response, error) {
	if c.breaker == nil {
		return c.attempt(ctx, r)
	}
	var resp *http.Response
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.attempt(ctx, r)
		return err
	})
	return resp, err
}

// attempt sends r and returns the response when its status is expected. Any
// other status is read, closed and returned as an *APIError.
func (c *Client) attempt(ctx context.Context, r request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if !r.anonymous {
		if err := c.ensureFresh(ctx); err != nil {
			return nil, err
		}
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.URL(r.path, r.params), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	if token := c.Token(); token != "" && !r.anonymous {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.observe(r.method, 0, elapsed)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: %s", ErrUnavailable, r.method, r.path, err.Error())
	}
	c.metrics.observe(r.method, resp.StatusCode, elapsed)

	c.logger.Debug().
		Str("method", r.method).
		Str("path", r.path).
		Int("status", resp.StatusCode).
		Dur("latency", elapsed).
		Str("request_id", requestID).
		Msg("directus request")

	if expected(resp.StatusCode, r.expect) {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, statusError(r, resp)
}

func expected(status int, want []int) bool {
	if len(want) == 0 {
		return status == http.StatusOK
	}
	for _, s := range want {
		if s == status {
			return true
		}
	}
	return false
}

func statusError(r request, resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Method: r.method, Path: r.path}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var env envelope
	if json.Unmarshal(data, &env) == nil && len(env.Errors) > 0 {
		apiErr.Errors = env.Errors
	} else if msg := strings.TrimSpace(string(data)); msg != "" {
		apiErr.Errors = []ErrorDetail{{Message: msg}}
	}
	return apiErr
}

// Get sends GET p with q as query-string parameters and decodes data into out.
func (c *Client) Get(ctx context.Context, p string, q query.Query, out any) error {
	params, err := q.Values()
	if err != nil {
		return err
	}
	r := request{method: http.MethodGet, path: p, params: params}
	return c.call(ctx, r, out)
}

// Search sends q in the body of a SEARCH request.
func (c *Client) Search(ctx context.Context, p string, q query.Query, out any) error {
	r, err := newRequest(MethodSearch, p, query.SearchRequest{Query: q})
	if err != nil {
		return err
	}
	return c.call(ctx, r, out)
}

// Post expects 200.
func (c *Client) Post(ctx context.Context, p string, body, out any) error {
	r, err := newRequest(http.MethodPost, p, body, http.StatusOK)
	if err != nil {
		return err
	}
	return c.call(ctx, r, out)
}

// Patch expects 200 or 204.
func (c *Client) Patch(ctx context.Context, p string, body, out any) error {
	r, err := newRequest(http.MethodPatch, p, body, http.StatusOK, http.StatusNoContent)
	if err != nil {
		return err
	}
	return c.call(ctx, r, out)
}

// Delete expects 204. body may be nil.
func (c *Client) Delete(ctx context.Context, p string, body any) error {
	r, err := newRequest(http.MethodDelete, p, body, http.StatusNoContent)
	if err != nil {
		return err
	}
	return c.call(ctx, r, nil)
}

// GetCSV returns the CSV export of p.
func (c *Client) GetCSV(ctx context.Context, p string, q query.Query) ([]byte, error) {
	params, err := q.Values()
	if err != nil {
		return nil, err
	}
	params.Set("export", "csv")
	return c.do(ctx, request{method: http.MethodGet, path: p, params: params})
}

// stream copies the body of a GET to w without retrying.
func (c *Client) stream(ctx context.Context, p string, params url.Values, w io.Writer) (int64, error) {
	resp, err := c.open(ctx, request{method: http.MethodGet, path: p, params: params})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("copy %s: %w", p, err)
	}
	return n, nil
}

// escape quotes one path segment.
func escape(v any) string {
	return url.PathEscape(fmt.Sprint(v))
}
