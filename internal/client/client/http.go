package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/common"
	"github.com/tidwall/gjson"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPClient talks to the JSON API rooted at BaseURL + "/api".
type HTTPClient struct {
	baseURL  string
	clientID string
	token    TokenSource
	http     *http.Client
}

type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.http = hc }
}

func WithTokenSource(ts TokenSource) HTTPOption {
	return func(c *HTTPClient) { c.token = ts }
}

func NewHTTPClient(baseURL, clientID string, opts ...HTTPOption) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", baseURL)
	}
	c := &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: clientID,
		token:    NoToken,
		http:     &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	var out api.PingResponse
	if err := c.do(ctx, http.MethodGet, "/api/ping", nil, &out); err != nil {
		return err
	}
	if out.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (c *HTTPClient) Register(ctx context.Context, username, password string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/register", api.Credentials{Username: username, Password: password}, nil)
}

func (c *HTTPClient) Login(ctx context.Context, username, password string) (*api.Token, error) {
	var out api.Token
	if err := c.do(ctx, http.MethodPost, "/api/auth/token", api.Credentials{Username: username, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Create(ctx context.Context, e api.Entity, rec api.Record) (api.Record, error) {
	var out api.RecordEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/"+string(e), api.RecordEnvelope{Record: rec}, &out); err != nil {
		return nil, err
	}
	return out.Record, nil
}

func (c *HTTPClient) Update(ctx context.Context, e api.Entity, id int64, patch api.Record) (api.Record, error) {
	var out api.RecordEnvelope
	if err := c.do(ctx, http.MethodPatch, recordPath(e, id), api.RecordEnvelope{Record: patch}, &out); err != nil {
		return nil, err
	}
	return out.Record, nil
}

func (c *HTTPClient) Delete(ctx context.Context, e api.Entity, id int64) error {
	return c.do(ctx, http.MethodDelete, recordPath(e, id), nil, nil)
}

func (c *HTTPClient) Snapshot(ctx context.Context) (*api.Snapshot, error) {
	var out api.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/sync/full", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Incremental(ctx context.Context, req *api.IncrementalRequest) (*api.IncrementalResponse, error) {
	var out api.IncrementalResponse
	if err := c.do(ctx, http.MethodPost, "/api/sync/incremental", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Status(ctx context.Context) (*api.Status, error) {
	var out api.Status
	if err := c.do(ctx, http.MethodGet, "/api/sync/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PaperPDFURL resolves the redirect served for a paper's PDF without
// following it.
func (c *HTTPClient) PaperPDFURL(ctx context.Context, paperID int64) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, recordPath(api.Papers, paperID)+"/pdf", nil)
	if err != nil {
		return "", err
	}
	hc := *c.http
	hc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp, err := hc.Do(req)
	if err != nil {
		return "", transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		if loc := resp.Header.Get("Location"); loc != "" {
			return loc, nil
		}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out api.PDFLink
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		return out.URL, nil
	}
	return "", statusError(resp)
}

// UploadPaperPDF asks the server for an upload address for the paper's PDF
// and puts pdf there. It returns the storage key the paper now points at.
func (c *HTTPClient) UploadPaperPDF(ctx context.Context, paperID int64, pdf []byte) (string, error) {
	var up api.PDFUpload
	if err := c.do(ctx, http.MethodPost, recordPath(api.Papers, paperID)+"/pdf", nil, &up); err != nil {
		return "", err
	}
	if err := c.putPresigned(ctx, up.URL, pdf); err != nil {
		return "", err
	}
	return up.Key, nil
}

func (c *HTTPClient) putPresigned(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/pdf")

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload failed: %s", resp.Status)
	}
	return nil
}

func recordPath(e api.Entity, id int64) string {
	return "/api/" + string(e) + "/" + strconv.FormatInt(id, 10)
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.clientID != "" {
		req.Header.Set(common.ClientIDHeaderName, c.clientID)
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(gjson.GetBytes(raw, "error").String())
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = ErrUnauthorized
	case http.StatusNotFound:
		sentinel = ErrNotFound
	case http.StatusConflict:
		sentinel = ErrConflict
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		sentinel = ErrUnavailable
	default:
		return &ServerError{Status: resp.StatusCode, Message: msg}
	}
	if msg == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}
