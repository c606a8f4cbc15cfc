// Package klient holds HTTP clients for downstream services.
package klient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Beslutter finalizes an approved behandling in the downstream decision
// service. Approval of an oppgave is only allowed after this call succeeds.
type Beslutter interface {
	Ferdigstill(ctx context.Context, behandlingId string, utfall bool) error
}

// NedstroemsFeil wraps any failure from a downstream service so callers can
// map it to a gateway error instead of an internal one.
type NedstroemsFeil struct {
	Tjeneste string
	Aarsak   error
}

func (e *NedstroemsFeil) Error() string {
	return fmt.Sprintf("%s: %v", e.Tjeneste, e.Aarsak)
}

func (e *NedstroemsFeil) Unwrap() error {
	return e.Aarsak
}

// APIFeil wraps non-2xx responses.
type APIFeil struct {
	StatusCode int
	Body       string
}

func (e *APIFeil) Error() string {
	return fmt.Sprintf("api-feil: status=%d body=%s", e.StatusCode, e.Body)
}

// HTTPBeslutter is the HTTP implementation of Beslutter.
type HTTPBeslutter struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

func NyBeslutter(baseURL string) *HTTPBeslutter {
	return &HTTPBeslutter{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

func (c *HTTPBeslutter) Ferdigstill(ctx context.Context, behandlingId string, utfall bool) error {
	body := map[string]any{
		"behandlingId": behandlingId,
		"utfall":       utfall,
	}
	endpoint := fmt.Sprintf("v1/behandlinger/%s/ferdigstill", url.PathEscape(behandlingId))
	if err := c.do(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return &NedstroemsFeil{Tjeneste: "beslutter", Aarsak: err}
	}
	return nil
}

func (c *HTTPBeslutter) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIFeil{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
