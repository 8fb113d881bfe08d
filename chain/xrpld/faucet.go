package xrpld

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// FaucetConfig holds configuration for the test-network faucet client.
type FaucetConfig struct {
	// URL is the faucet's account-funding endpoint.
	URL string

	// Timeout bounds a single funding request.
	// Default: 30 seconds
	Timeout time.Duration

	// RetryAttempts is how many times to retry a failed funding request.
	// Default: 3
	RetryAttempts int

	// RetryDelay is the pause between retries.
	// Default: 2 seconds
	RetryDelay time.Duration
}

// DefaultFaucetConfig returns a default configuration for the given faucet
// endpoint.
func DefaultFaucetConfig(url string) *FaucetConfig {
	return &FaucetConfig{
		URL:           url,
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    2 * time.Second,
	}
}

// FaucetClient funds accounts on a test network. Funding settles through
// consensus on the faucet operator's side, so a successful response only
// means the request was accepted; callers poll the account afterwards.
type FaucetClient struct {
	cfg    *FaucetConfig
	client *http.Client
}

// NewFaucetClient creates a new faucet client.
func NewFaucetClient(cfg *FaucetConfig) *FaucetClient {
	return &FaucetClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Fund asks the faucet to fund the given address. Public faucets rate limit
// aggressively, so transient failures are retried.
func (f *FaucetClient) Fund(ctx context.Context, address string) error {
	body, err := json.Marshal(map[string]string{
		"destination": address,
	})
	if err != nil {
		return fmt.Errorf("failed to encode faucet request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= f.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			log.Debugf("Retrying faucet funding of %s (attempt "+
				"%d): %v", address, attempt, lastErr)

			select {
			case <-time.After(f.cfg.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = f.fundOnce(ctx, body)
		if lastErr == nil {
			log.Infof("Faucet funding requested for %s", address)
			return nil
		}
	}

	return fmt.Errorf("faucet funding of %s failed: %w", address, lastErr)
}

// fundOnce performs a single funding request.
func (f *FaucetClient) fundOnce(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, f.cfg.URL, bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("failed to create faucet request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("faucet returned status %d: %s",
			resp.StatusCode, msg)
	}

	return nil
}
