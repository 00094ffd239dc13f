package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

const defaultDeliveryTimeout = 10 * time.Second

// Deliverer performs a single outbound HTTP attempt.
type Deliverer interface {
	Deliver(ctx context.Context, req *Request) error
}

// DeliveryError is returned for non-2xx destination responses.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("destination responded with status %d", e.StatusCode)
}

// HTTPDeliverer posts envelopes to destination URLs.
type HTTPDeliverer struct {
	HTTPClient *http.Client
}

// NewHTTPDeliverer creates a deliverer with the given per-attempt timeout.
func NewHTTPDeliverer(timeout time.Duration) *HTTPDeliverer {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	return &HTTPDeliverer{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (d *HTTPDeliverer) Deliver(ctx context.Context, req *Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	httpReq.Header.Set(fiber.HeaderUserAgent, "CreditGate-Dispatch/1.0")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := d.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
