package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
)

// doRequest posts to OpenRouter, retrying transient failures with jittered backoff.
// It returns the number of attempts made.
func (c *OpenRouterClient) doRequest(ctx context.Context, path string, orReq *openRouterRequest) (*openRouterResponse, int, error) {
	attempts := 0
	jitter := c.retryDelay / 2
	if jitter <= 0 {
		jitter = time.Millisecond
	}

	resp, err := retry.DoWithData(
		func() (*openRouterResponse, error) {
			attempts++
			if attempts > 1 {
				c.injectNonce(orReq, attempts-1)
			}
			return c.send(ctx, path, orReq)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(10*time.Second),
		retry.MaxJitter(jitter),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, attempts, err
	}
	return resp, attempts, nil
}

// send performs one HTTP round trip. Errors wrapped in retry.Unrecoverable stop the retry loop.
func (c *OpenRouterClient) send(ctx context.Context, path string, orReq *openRouterRequest) (*openRouterResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, retry.Unrecoverable(err)
	}

	bodyBytes, err := json.Marshal(orReq)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/jackzampolin/proposer")
	req.Header.Set("X-Title", "Proposer")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Unrecoverable(ctx.Err())
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case isAuthStatus(resp.StatusCode):
		return nil, retry.Unrecoverable(&AuthError{
			Provider:   OpenRouterName,
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		})
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.limiter.Record429(retryAfter)
		return nil, &RateLimitError{
			Message:    fmt.Sprintf("OpenRouter rate limited: %s", string(respBody)),
			RetryAfter: retryAfter,
			StatusCode: resp.StatusCode,
		}
	case shouldRetryStatus(resp.StatusCode):
		return nil, &StatusError{Provider: OpenRouterName, StatusCode: resp.StatusCode, Body: string(respBody)}
	case resp.StatusCode != http.StatusOK:
		return nil, retry.Unrecoverable(&StatusError{Provider: OpenRouterName, StatusCode: resp.StatusCode, Body: string(respBody)})
	}

	var orResp openRouterResponse
	if err := json.Unmarshal(respBody, &orResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if orResp.Error != nil {
		code := fmt.Sprintf("%v", orResp.Error.Code)
		switch code {
		case "overloaded", "rate_limit_exceeded", "503", "502", "500":
			return nil, fmt.Errorf("OpenRouter API error (retryable): %s", orResp.Error.Message)
		case "401", "403":
			return nil, retry.Unrecoverable(&AuthError{Provider: OpenRouterName, Message: orResp.Error.Message})
		}
		return nil, retry.Unrecoverable(fmt.Errorf("OpenRouter API error: %s", orResp.Error.Message))
	}
	if len(orResp.Choices) == 0 {
		return nil, fmt.Errorf("empty choices in response (model=%s, id=%s)", orResp.Model, orResp.ID)
	}

	return &orResp, nil
}

// shouldRetryStatus returns true for status codes that should be retried.
func shouldRetryStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		// Often cache/format issues; a nonce makes the retried request distinct.
		return true
	default:
		return statusCode >= 500
	}
}

// injectNonce appends a unique comment to the last user message so a retry is not served from cache.
func (c *OpenRouterClient) injectNonce(req *openRouterRequest, attempt int) {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != "user" {
			continue
		}
		nonce := uuid.New().String()[:16]
		req.Messages[i].Content += fmt.Sprintf("\n<!-- retry_%d_id: %s -->", attempt, nonce)
		return
	}
}
