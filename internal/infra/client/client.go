// Package client implements the HTTP client for the remote protection
// service: multipart job submission with upload progress, status and result
// reads, variant downloads, and poll-until-complete composition.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/artshield/artshield/internal/app/reconcile"
	"github.com/artshield/artshield/internal/config"
	"github.com/artshield/artshield/internal/domain/protection"
	"github.com/artshield/artshield/internal/infra/poller"
	"github.com/artshield/artshield/pkg/common"
	"github.com/artshield/artshield/pkg/common/logger"
)

// Variant identifies one downloadable rendition of a protected artwork.
type Variant string

const (
	VariantOriginal  Variant = "original"
	VariantProtected Variant = "protected"
	VariantMask      Variant = "mask"
)

// ParseVariant validates a variant name.
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case VariantOriginal:
		return VariantOriginal, nil
	case VariantProtected:
		return VariantProtected, nil
	case VariantMask:
		return VariantMask, nil
	default:
		return "", protection.ValidationError{Field: "variant", Reason: fmt.Sprintf("unknown variant %q", s)}
	}
}

// Result is the final payload of a terminal job.
type Result struct {
	JobID        string          `json:"job_id"`
	Status       string          `json:"status"`
	Artwork      json.RawMessage `json:"artwork,omitempty"`
	ErrorMessage string          `json:"error,omitempty"`
}

// Client talks to the remote protection service. One Client may serve many
// jobs; per-job reconciliation state is created inside PollUntilComplete and
// never shared.
type Client struct {
	baseURL string
	token   string

	httpClient   *http.Client
	uploadClient *http.Client
	limiter      *common.RateLimiter

	upload     config.UploadConfig
	pollCfg    config.PollingConfig
	catalog    *protection.Catalog
	normalizer *protection.Normalizer
	reconciler *reconcile.Reconciler

	log    *logger.Logger
	tracer trace.Tracer
}

// New creates a Client from configuration. The transport is shared between
// the request client and the upload client; only the timeout differs, since
// large uploads legitimately outlive the per-request budget.
func New(cfg config.Config, log *logger.Logger, tracer trace.Tracer) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	transport := otelhttp.NewTransport(&http.Transport{
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	})

	catalog := protection.DefaultCatalog()

	return &Client{
		baseURL:      strings.TrimRight(cfg.Endpoint.BaseURL, "/"),
		token:        cfg.Endpoint.Token,
		httpClient:   &http.Client{Transport: transport, Timeout: cfg.Endpoint.RequestTimeout},
		uploadClient: &http.Client{Transport: transport},
		limiter:      common.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		upload:       cfg.Upload,
		pollCfg:      cfg.Polling,
		catalog:      catalog,
		normalizer:   protection.NewNormalizer(catalog),
		reconciler:   reconcile.New(catalog),
		log:          log,
		tracer:       tracer,
	}, nil
}

// GetStatus fetches the raw status payload for a job. The payload shape is
// whatever the service emitted; callers normalize it before use.
func (c *Client) GetStatus(ctx context.Context, jobID string) (protection.RawStatus, error) {
	ctx, span := c.tracer.Start(ctx, "client.get_status",
		trace.WithAttributes(attribute.String("job_id", jobID)),
	)
	defer span.End()

	var raw protection.RawStatus
	if err := c.getJSON(ctx, fmt.Sprintf("/jobs/%s", jobID), jobID, &raw); err != nil {
		return protection.RawStatus{}, err
	}
	return raw, nil
}

// GetResult fetches the result payload of a terminal job. It fails with
// StillProcessingError while the job runs and NotFoundError for unknown jobs.
func (c *Client) GetResult(ctx context.Context, jobID string) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "client.get_result",
		trace.WithAttributes(attribute.String("job_id", jobID)),
	)
	defer span.End()

	var res Result
	if err := c.getJSON(ctx, fmt.Sprintf("/jobs/%s/result", jobID), jobID, &res); err != nil {
		return nil, err
	}
	if res.JobID == "" {
		res.JobID = jobID
	}
	return &res, nil
}

// DownloadVariant streams one rendition of a terminal job. The caller owns
// the returned body and must close it.
func (c *Client) DownloadVariant(ctx context.Context, jobID string, variant Variant) (io.ReadCloser, error) {
	if _, err := ParseVariant(string(variant)); err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "client.download_variant",
		trace.WithAttributes(
			attribute.String("job_id", jobID),
			attribute.String("variant", string(variant)),
		),
	)
	defer span.End()

	resp, err := c.get(ctx, fmt.Sprintf("/jobs/%s/download/%s", jobID, variant), jobID)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// get performs a rate-limited GET and maps semantic status codes onto the
// domain error taxonomy. On success the caller owns resp.Body.
func (c *Client) get(ctx context.Context, path, jobID string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, protection.NetworkError{Op: "GET " + path, Err: err}
	}

	if err := c.checkStatus(resp, jobID); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// getJSON performs a GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, path, jobID string, out any) error {
	resp, err := c.get(ctx, path, jobID)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response for %s: %w", path, err)
	}
	return nil
}

// checkStatus maps semantic HTTP responses 1:1 onto the error taxonomy.
// These are never retried.
func (c *Client) checkStatus(resp *http.Response, jobID string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return protection.NotFoundError{JobID: jobID}
	case resp.StatusCode == http.StatusConflict:
		return protection.StillProcessingError{JobID: jobID}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// authorize attaches auth and a unique request id for server-side
// correlation.
func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
}

// newPoller builds the backoff poller from the client's polling config.
func (c *Client) newPoller() *poller.Poller {
	return poller.New(poller.Config{
		InitialDelay: c.pollCfg.InitialDelay,
		Interval:     c.pollCfg.Interval,
		MaxAttempts:  c.pollCfg.MaxAttempts,
		Multiplier:   c.pollCfg.Multiplier,
		MaxDelay:     c.pollCfg.MaxDelay,
	}, c.tracer)
}
