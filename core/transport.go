package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"go.uber.org/zap"

	"riskagent/browser"
	"riskagent/utils"
)

// Transport delivers one payload. Retrying is the caller's business.
type Transport interface {
	Send(ctx context.Context, payload RiskPayload) error
}

// HTTPTransport posts payloads as JSON the way the page's own fetch would:
// same user agent, origin and referer, over a client hello matching the
// browser family.
type HTTPTransport struct {
	Client    tls_client.HttpClient
	Endpoint  string
	UserAgent string
	Origin    string
	Referer   string
	Language  string
}

// NewHTTPTransport resolves endpoint against the page URL and takes request
// headers from the page's navigator.
func NewHTTPTransport(client tls_client.HttpClient, endpoint string, w browser.Window) (*HTTPTransport, error) {
	u, err := utils.ResolveURL(w.Location(), endpoint)
	if err != nil {
		return nil, fmt.Errorf("collect endpoint: %w", err)
	}
	t := &HTTPTransport{
		Client:   client,
		Endpoint: u.String(),
		Origin:   pageOrigin(w),
		Referer:  w.Location(),
	}
	if nav, err := w.Navigator(); err == nil {
		t.UserAgent = nav.UserAgent
		t.Language = nav.Language
	}
	return t, nil
}

func (t *HTTPTransport) Send(ctx context.Context, payload RiskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := fhttp.NewRequestWithContext(ctx, fhttp.MethodPost, t.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create new POST request: %w", err)
	}

	// Headers
	req.Header = fhttp.Header{
		"content-type":    {`application/json`},
		"accept":          {`*/*`},
		"user-agent":      {t.UserAgent},
		"origin":          {t.Origin},
		"referer":         {t.Referer},
		"sec-fetch-site":  {`same-origin`},
		"sec-fetch-mode":  {`cors`},
		"sec-fetch-dest":  {`empty`},
		"accept-encoding": {`gzip, deflate, br, zstd`},
		fhttp.HeaderOrderKey: {
			"host",
			"content-length",
			"user-agent",
			"content-type",
			"accept",
			"origin",
			"sec-fetch-site",
			"sec-fetch-mode",
			"sec-fetch-dest",
			"referer",
			"accept-encoding",
			"accept-language",
			"cookie",
		},
		fhttp.PHeaderOrderKey: {":method", ":authority", ":scheme", ":path"},
	}
	if t.Language != "" {
		req.Header.Set("accept-language", t.Language)
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("collect request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("collect endpoint returned status code: %d", resp.StatusCode)
	}
	return nil
}

// Dispatch sends payload in the background. Failures are logged and
// counted, never returned. The channel closes when the attempt is over.
func Dispatch(ctx context.Context, t Transport, payload RiskPayload, logger *zap.Logger, metrics *Metrics) <-chan struct{} {
	done := make(chan struct{})
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer close(done)
		err := capture(func() error { return t.Send(ctx, payload) })
		if err != nil {
			if logger != nil {
				logger.Warn("payload delivery failed", zap.Error(err))
			}
			if metrics != nil {
				metrics.Deliveries.WithLabelValues("failed").Inc()
			}
			return
		}
		if metrics != nil {
			metrics.Deliveries.WithLabelValues("ok").Inc()
		}
	}()
	return done
}
