package saksflytsdk

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

// Client is a minimal saksflyt HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Oppgave represents the API oppgave model.
type Oppgave struct {
	ID            string  `json:"id"`
	BehandlingID  string  `json:"behandlingId"`
	Ident         string  `json:"ident"`
	Tilstand      string  `json:"tilstand"`
	Saksbehandler *string `json:"saksbehandler,omitempty"`
	Opprettet     string  `json:"opprettet"`
	Endret        string  `json:"endret"`
	UtsattTil     *string `json:"utsattTil,omitempty"`
	Notater       []Notat `json:"notater,omitempty"`
}

type Notat struct {
	ID        string `json:"id"`
	Tekst     string `json:"tekst"`
	SkrevetAv string `json:"skrevetAv"`
	Opprettet string `json:"opprettet"`
}

// Steg represents one node in the behandling's step graph.
type Steg struct {
	ID         string   `json:"id"`
	Vilkaar    bool     `json:"vilkår"`
	Verditype  string   `json:"verditype"`
	Besvart    bool     `json:"besvart"`
	Svar       any      `json:"svar,omitempty"`
	AvhengerAv []string `json:"avhengerAv,omitempty"`
}

// Behandling represents the API behandling model.
type Behandling struct {
	ID        string   `json:"id"`
	Ident     string   `json:"ident"`
	Opprettet string   `json:"opprettet"`
	Ferdig    bool     `json:"ferdig"`
	Utfall    *bool    `json:"utfall,omitempty"`
	Steg      []Steg   `json:"steg"`
	NesteSteg []string `json:"nesteSteg,omitempty"`
}

// Henvendelse represents the API henvendelse model.
type Henvendelse struct {
	ID            string  `json:"id"`
	Ident         string  `json:"ident"`
	Tekst         string  `json:"tekst"`
	Tilstand      string  `json:"tilstand"`
	Saksbehandler *string `json:"saksbehandler,omitempty"`
	Mottatt       string  `json:"mottatt"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListOppgaver returns oppgaver, optionally filtered on tilstand.
func (c *Client) ListOppgaver(ctx context.Context, tilstand string) ([]Oppgave, error) {
	endpoint := "oppgaver"
	if tilstand != "" {
		endpoint += "?tilstand=" + url.QueryEscape(tilstand)
	}
	var resp []Oppgave
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Oppgave fetches an oppgave by id.
func (c *Client) Oppgave(ctx context.Context, id string) (Oppgave, error) {
	var resp Oppgave
	err := c.do(ctx, http.MethodGet, "oppgaver/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Tildel claims the oppgave for the authenticated saksbehandler.
func (c *Client) Tildel(ctx context.Context, id string) (Oppgave, error) {
	return c.oppgaveHandling(ctx, id, "tildel")
}

// LeggTilbake releases the claim.
func (c *Client) LeggTilbake(ctx context.Context, id string) (Oppgave, error) {
	return c.oppgaveHandling(ctx, id, "legg-tilbake")
}

// Godkjenn approves the oppgave.
func (c *Client) Godkjenn(ctx context.Context, id string) (Oppgave, error) {
	return c.oppgaveHandling(ctx, id, "godkjenn")
}

// Avslaa rejects the oppgave.
func (c *Client) Avslaa(ctx context.Context, id string) (Oppgave, error) {
	return c.oppgaveHandling(ctx, id, "avslaa")
}

func (c *Client) oppgaveHandling(ctx context.Context, id, action string) (Oppgave, error) {
	var resp Oppgave
	endpoint := fmt.Sprintf("oppgaver/%s/%s", url.PathEscape(id), action)
	err := c.do(ctx, http.MethodPut, endpoint, nil, &resp)
	return resp, err
}

// Utsett parks the oppgave until the given date (YYYY-MM-DD).
func (c *Client) Utsett(ctx context.Context, id, utsattTil string) (Oppgave, error) {
	var resp Oppgave
	endpoint := fmt.Sprintf("oppgaver/%s/utsett", url.PathEscape(id))
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"utsattTil": utsattTil}, &resp)
	return resp, err
}

// Notat adds a note to the oppgave.
func (c *Client) Notat(ctx context.Context, id, tekst string) (Oppgave, error) {
	var resp Oppgave
	endpoint := fmt.Sprintf("oppgaver/%s/notat", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"tekst": tekst}, &resp)
	return resp, err
}

// BesvarSteg answers a step on the behandling behind the oppgave.
func (c *Client) BesvarSteg(ctx context.Context, oppgaveID, stegID string, verdi any) (Behandling, error) {
	var resp Behandling
	endpoint := fmt.Sprintf("oppgaver/%s/steg/%s", url.PathEscape(oppgaveID), url.PathEscape(stegID))
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"verdi": verdi}, &resp)
	return resp, err
}

// Behandling fetches a behandling by id.
func (c *Client) Behandling(ctx context.Context, id string) (Behandling, error) {
	var resp Behandling
	err := c.do(ctx, http.MethodGet, "behandlinger/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListHenvendelser returns henvendelser, optionally filtered on tilstand.
func (c *Client) ListHenvendelser(ctx context.Context, tilstand string) ([]Henvendelse, error) {
	endpoint := "henvendelser"
	if tilstand != "" {
		endpoint += "?tilstand=" + url.QueryEscape(tilstand)
	}
	var resp []Henvendelse
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// TildelHenvendelse claims a henvendelse.
func (c *Client) TildelHenvendelse(ctx context.Context, id string) (Henvendelse, error) {
	var resp Henvendelse
	endpoint := fmt.Sprintf("henvendelser/%s/tildel", url.PathEscape(id))
	err := c.do(ctx, http.MethodPut, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
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
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
