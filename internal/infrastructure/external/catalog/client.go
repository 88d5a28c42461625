package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
	"github.com/admissions-hub/admissions-hub/pkg/circuitbreaker"
	"github.com/admissions-hub/admissions-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultBaseURL is the public open data portal.
	DefaultBaseURL = "https://data.enseignementsup-recherche.gouv.fr"

	// DefaultDataset is the Parcoursup programs dataset.
	DefaultDataset = "fr-esr-parcoursup"

	searchPath = "/api/records/1.0/search/"

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 4 << 10
)

// ClientConfig contains configuration for the catalog client.
type ClientConfig struct {
	// BaseURL is the portal base URL, without trailing slash
	BaseURL string

	// Dataset is the dataset identifier
	Dataset string

	// PageSize is the rows parameter of a listing request
	PageSize int

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// RateLimiterConfig for API rate limiting
	RateLimiterConfig RateLimiterConfig

	// MaxRetries is the number of retries after the first attempt
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Breaker overrides the default catalog circuit breaker
	Breaker *circuitbreaker.CircuitBreaker

	// Logger for structured logging
	Logger *slog.Logger

	// HTTPClient overrides the default client (tests)
	HTTPClient *http.Client
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:           DefaultBaseURL,
		Dataset:           DefaultDataset,
		PageSize:          5000,
		Timeout:           30 * time.Second,
		RateLimiterConfig: DefaultRateLimiterConfig(),
		MaxRetries:        3,
		RetryBaseDelay:    time.Second,
		RetryMaxDelay:     30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the Parcoursup open data client. It implements admission.CatalogLookup.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	logger      *slog.Logger
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	retrier     *retry.Retrier
	mapper      *Mapper
}

var _ admission.CatalogLookup = (*Client)(nil)

// NewClient creates a new catalog client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Dataset == "" {
		config.Dataset = DefaultDataset
	}
	if config.PageSize <= 0 {
		config.PageSize = DefaultClientConfig().PageSize
	}

	logger := config.Logger.With("component", "catalog_client")

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	breaker := config.Breaker
	if breaker == nil {
		breaker = circuitbreaker.CatalogAPIBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		})
	}

	retrier := retry.CatalogAPIRetrier(config.MaxRetries+1, config.RetryBaseDelay, config.RetryMaxDelay)

	return &Client{
		config:      config,
		httpClient:  httpClient,
		logger:      logger,
		rateLimiter: NewRateLimiter(config.RateLimiterConfig),
		breaker:     breaker,
		retrier:     retrier,
		mapper:      NewMapper(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// ListPrograms fetches the whole dataset in one page of PageSize rows.
func (c *Client) ListPrograms(ctx context.Context) ([]admission.CatalogProgram, error) {
	params := url.Values{}
	params.Set("q", "")
	params.Set("rows", strconv.Itoa(c.config.PageSize))

	var response SearchResponseDTO
	if err := c.doRequest(ctx, params, &response); err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}

	programs, skipped := c.mapper.ProgramsFromRecords(response.Records)
	if skipped > 0 {
		c.logger.Warn("catalog records skipped", "skipped", skipped, "received", len(response.Records))
	}
	if response.NHits > len(response.Records) {
		c.logger.Info("catalog truncated to page size",
			"total", response.NHits, "page_size", c.config.PageSize)
	}

	c.logger.Debug("catalog listed", "programs", len(programs))
	return programs, nil
}

// LookupProgram fetches one program by record id.
// Returns shared.ErrProgramNotFound when the dataset has no such record.
func (c *Client) LookupProgram(ctx context.Context, id shared.ProgramID) (*admission.CatalogProgram, error) {
	if id.IsEmpty() {
		return nil, shared.ErrProgramNotFound
	}

	params := url.Values{}
	params.Set("q", fmt.Sprintf("recordid:%q", id.String()))
	params.Set("rows", "1")

	var response SearchResponseDTO
	if err := c.doRequest(ctx, params, &response); err != nil {
		return nil, fmt.Errorf("lookup program %s: %w", id, err)
	}

	for i := range response.Records {
		if response.Records[i].RecordID != id.String() {
			continue
		}
		p, err := c.mapper.ProgramFromRecord(&response.Records[i])
		if err != nil {
			return nil, shared.WrapError("catalog", "LookupProgram", shared.ErrCatalogInvalidResponse,
				"cannot map record", err)
		}
		return p, nil
	}
	return nil, shared.ErrProgramNotFound
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest performs a search request with retries, circuit breaking and rate limiting.
func (c *Client) doRequest(ctx context.Context, params url.Values, result interface{}) error {
	params.Set("dataset", c.config.Dataset)

	attempt := 0
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		attempt++
		err := c.breaker.Execute(ctx, func(ctx context.Context) error {
			if err := c.rateLimiter.Allow(ctx); err != nil {
				return err
			}
			return c.doSingleRequest(ctx, params, result)
		})
		if err != nil && attempt > 1 {
			c.logger.Debug("catalog request retry failed", "attempt", attempt, "error", err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	return c.mapError(err)
}

// doSingleRequest performs a single HTTP request. Transient failures are
// wrapped with retry.Retryable.
func (c *Client) doSingleRequest(ctx context.Context, params url.Values, result interface{}) error {
	fullURL := c.config.BaseURL + searchPath + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(ctx.Err())
		}
		return retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	c.logger.Debug("catalog api request",
		"status", resp.StatusCode, "latency", time.Since(start).String())

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.rateLimiter.RecordRateLimitHit(retryAfter)
		return retry.Retryable(&RateLimitError{RetryAfter: retryAfter})
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIErrorDTO{Status: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 500 {
			return retry.Retryable(apiErr)
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

var errInvalidBody = errors.New("decode response")

// mapError converts transport failures to domain errors.
func (c *Client) mapError(err error) error {
	var rateErr *RateLimitError
	var apiErr *APIErrorDTO
	var netErr net.Error

	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return shared.WrapError("catalog", "Request", shared.ErrCatalogUnavailable, "circuit open", err)
	case errors.As(err, &rateErr):
		return shared.WrapError("catalog", "Request", shared.ErrCatalogRateLimited, rateErr.Error(), err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return shared.WrapError("catalog", "Request", shared.ErrCatalogTimeout, "request timed out", err)
	case errors.Is(err, errInvalidBody):
		return shared.WrapError("catalog", "Parse", shared.ErrCatalogInvalidResponse, "cannot decode response", err)
	case errors.As(err, &apiErr):
		return shared.WrapError("catalog", "Request", shared.ErrCatalogUnavailable,
			fmt.Sprintf("portal answered %d", apiErr.Status), err)
	default:
		return shared.WrapError("catalog", "Request", shared.ErrCatalogUnavailable, "request failed", err)
	}
}

func parseRetryAfter(v string) time.Duration {
	if seconds, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 60 * time.Second
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH AND STATUS
// ══════════════════════════════════════════════════════════════════════════════

// ClientStatus is a snapshot of the client's resilience state.
type ClientStatus struct {
	RateLimiter  RateLimiterStatus
	BreakerState string
	Requests     int
	Failures     int
}

// Status returns the current status of the client.
func (c *Client) Status() ClientStatus {
	counts := c.breaker.Counts()
	return ClientStatus{
		RateLimiter:  c.rateLimiter.Status(),
		BreakerState: c.breaker.State().String(),
		Requests:     counts.Requests,
		Failures:     counts.TotalFailures,
	}
}

// Ping checks that the portal answers a minimal query.
func (c *Client) Ping(ctx context.Context) error {
	params := url.Values{}
	params.Set("rows", "0")
	var response SearchResponseDTO
	return c.doRequest(ctx, params, &response)
}

// Reset resets the rate limiter and circuit breaker.
func (c *Client) Reset() {
	c.rateLimiter.Reset()
	c.breaker.Reset()
}
