package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Compile-time interface check.
var _ Extractor = (*HTTPExtractor)(nil)

// HTTPOptions configures the HTTPExtractor.
type HTTPOptions struct {
	// Dimension is the expected vector dimensionality of the model.
	Dimension int

	// Model names the model the service should run.
	Model string

	// Preprocess fixes the shared preprocessing parameters.
	Preprocess PreprocessOptions

	// Retry controls how transient upstream failures are retried.
	Retry RetryPolicy

	// RequestsPerSecond caps the request rate against the service,
	// acting as backpressure for concurrent ingestion. 0 means no limit.
	RequestsPerSecond float64

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// HTTPClient overrides the default client (useful for tests).
	HTTPClient *http.Client
}

// DefaultHTTPOptions contains the default configuration options for the HTTPExtractor.
var DefaultHTTPOptions = HTTPOptions{
	Dimension:  2048,
	Model:      "resnet50",
	Preprocess: DefaultPreprocessOptions,
	Retry:      DefaultRetryPolicy,
	Timeout:    30 * time.Second,
}

// HTTPExtractor calls a remote embedding service over HTTP.
//
// The request carries the preprocessed pixel tensor plus the preprocessing
// parameters, the response is the raw embedding. Transient upstream failures
// are retried per the RetryPolicy; permanent failures (malformed input,
// 4xx) are surfaced immediately.
type HTTPExtractor struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	opts    HTTPOptions
}

// NewHTTPExtractor creates an extractor client against the embedding service
// at baseURL.
func NewHTTPExtractor(baseURL string, optFns ...func(o *HTTPOptions)) (*HTTPExtractor, error) {
	opts := DefaultHTTPOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if baseURL == "" {
		return nil, fmt.Errorf("extractor: base URL must not be empty")
	}

	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("extractor: dimension must be positive, got %d", opts.Dimension)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &HTTPExtractor{
		baseURL: baseURL,
		client:  client,
		limiter: limiter,
		opts:    opts,
	}, nil
}

// Name identifies the extractor.
func (e *HTTPExtractor) Name() string { return "http:" + e.opts.Model }

// Dimension returns the vector dimensionality.
func (e *HTTPExtractor) Dimension() int { return e.opts.Dimension }

type embedRequest struct {
	Model    string    `json:"model"`
	Pixels   []float32 `json:"pixels"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Channels int       `json:"channels"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed preprocesses the image and requests its embedding from the service.
func (e *HTTPExtractor) Embed(ctx context.Context, image []byte) ([]float32, error) {
	tensor, err := Preprocess(image, e.opts.Preprocess)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(embedRequest{
		Model:    e.opts.Model,
		Pixels:   tensor.Data,
		Width:    tensor.Width,
		Height:   tensor.Height,
		Channels: tensor.Channels,
	})
	if err != nil {
		return nil, NewExtractionError("marshal request", false, err)
	}

	var lastErr *ExtractionError

	for attempt := 0; attempt <= e.opts.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := e.opts.Retry.wait(ctx, attempt); err != nil {
				return nil, NewExtractionError("retry canceled", true, err)
			}
		}

		// Every attempt counts against the rate cap, retries included.
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, NewExtractionError("rate limit wait", true, err)
			}
		}

		vec, exErr := e.doRequest(ctx, body)
		if exErr == nil {
			return vec, nil
		}

		lastErr = exErr
		if !exErr.Transient {
			break
		}
	}

	return nil, lastErr
}

// doRequest performs a single embedding request.
func (e *HTTPExtractor) doRequest(ctx context.Context, body []byte) ([]float32, *ExtractionError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, NewExtractionError("create request", false, err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := e.client.Do(req)
	if err != nil {
		// Network errors and timeouts are transient.
		return nil, NewExtractionError("request failed", true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewExtractionError("read response", true, err)
	}

	switch {
	case httpResp.StatusCode == http.StatusOK:
		// Fall through to decode.
	case httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500:
		return nil, NewExtractionError(fmt.Sprintf("service error %d", httpResp.StatusCode), true, nil)
	default:
		return nil, NewExtractionError(fmt.Sprintf("service rejected request: %d: %s", httpResp.StatusCode, string(respBody)), false, nil)
	}

	var resp embedResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, NewExtractionError("unmarshal response", false, err)
	}

	if len(resp.Embedding) != e.opts.Dimension {
		return nil, NewExtractionError(fmt.Sprintf("unexpected embedding size %d, want %d", len(resp.Embedding), e.opts.Dimension), false, nil)
	}

	return resp.Embedding, nil
}
