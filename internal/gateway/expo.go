package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultExpoURL is the Expo push send endpoint.
	DefaultExpoURL = "https://exp.host/--/api/v2/push/send"
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
)

// ExpoClient posts JSON arrays of messages to an Expo-compatible endpoint.
type ExpoClient struct {
	httpClient  *http.Client
	url         string
	accessToken string
	timeout     time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewExpoClient creates a client with a bounded timeout. ratePerSecond
// limits outbound calls; zero disables limiting.
func NewExpoClient(url, accessToken string, timeout time.Duration, ratePerSecond float64, logger *slog.Logger) *ExpoClient {
	if logger == nil {
		logger = slog.Default()
	}
	if url == "" {
		url = DefaultExpoURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return &ExpoClient{
		httpClient:  &http.Client{Timeout: timeout},
		url:         url,
		accessToken: accessToken,
		timeout:     timeout,
		limiter:     limiter,
		logger:      logger,
	}
}

// Send posts one batch. 2xx means accepted regardless of per-ticket errors
// in the response body.
func (c *ExpoClient) Send(ctx context.Context, batch []Message) (Result, error) {
	if err := checkBatch(batch); err != nil {
		return Result{}, err
	}
	if len(batch) == 0 {
		return Result{Accepted: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit wait: %w", err)
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return Result{}, fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read response body: %w", err)
	}

	res := Result{
		Accepted:   resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		Raw:        body,
	}
	if !res.Accepted {
		c.logger.Warn("Push gateway rejected batch",
			"status", resp.StatusCode, "size", len(batch), "body", Truncate(body, 500))
	}
	return res, nil
}
