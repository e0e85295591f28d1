// Package apiclient is the single point of configuration for calls to the
// POS backend REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultPrefix is appended to the origin to form the API base URL.
	DefaultPrefix = "/api"
	// DefaultTimeout bounds every backend call.
	DefaultTimeout = 15 * time.Second

	errorBodyLimit = 4 << 10
)

// Config is resolved once at startup.
type Config struct {
	Origin  string
	Prefix  string
	Timeout time.Duration
	Verbose bool
}

// Client wraps net/http with the backend conventions.
type Client struct {
	baseURL    string
	httpClient *http.Client
	verbose    bool
	logger     *slog.Logger
	headers    http.Header
}

// New constructs a client for cfg.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	origin := strings.TrimRight(strings.TrimSpace(cfg.Origin), "/")
	if origin == "" {
		return nil, errors.New("apiclient: origin required")
	}
	if _, err := url.ParseRequestURI(origin); err != nil {
		return nil, fmt.Errorf("apiclient: invalid origin: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	prefix = "/" + strings.Trim(prefix, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	headers := http.Header{}
	headers.Set("Accept", "application/json")
	return &Client{
		baseURL:    origin + prefix,
		httpClient: &http.Client{Timeout: timeout},
		verbose:    cfg.Verbose,
		logger:     logger,
		headers:    headers,
	}, nil
}

// BaseURL returns origin plus API prefix.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Binary is a raw response body with its metadata.
type Binary struct {
	Data        []byte
	ContentType string
	Filename    string
}

// GetJSON issues a GET and decodes the JSON response into dest.
func (c *Client) GetJSON(ctx context.Context, path string, params any, dest any) error {
	return c.doJSON(ctx, http.MethodGet, path, params, nil, dest)
}

// PostJSON issues a POST with body and decodes the response into dest.
func (c *Client) PostJSON(ctx context.Context, path string, body any, dest any) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, body, dest)
}

// PutJSON issues a PUT with body and decodes the response into dest.
func (c *Client) PutJSON(ctx context.Context, path string, body any, dest any) error {
	return c.doJSON(ctx, http.MethodPut, path, nil, body, dest)
}

// Delete issues a DELETE and discards the response body.
func (c *Client) Delete(ctx context.Context, path string, params any) error {
	return c.doJSON(ctx, http.MethodDelete, path, params, nil, nil)
}

// PostMultipart uploads form and decodes the response into dest.
func (c *Client) PostMultipart(ctx context.Context, path string, form *Multipart, dest any) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, form, dest)
}

// GetBinary issues a GET and returns the undecoded body, e.g. a PDF.
func (c *Client) GetBinary(ctx context.Context, path string, params any) (*Binary, error) {
	resp, err := c.do(ctx, http.MethodGet, path, params, nil, "*/*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return &Binary{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    dispositionFilename(resp.Header.Get("Content-Disposition")),
	}, nil
}

// GetPage issues a GET against a list endpoint and decodes either a
// paginated envelope or a raw array.
func (c *Client) GetPage(ctx context.Context, path string, params any) (Page, error) {
	resp, err := c.do(ctx, http.MethodGet, path, params, nil, "")
	if err != nil {
		return Page{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, classify(ctx, err)
	}
	return DecodePage(data)
}

func (c *Client) doJSON(ctx context.Context, method, path string, params, body, dest any) error {
	resp, err := c.do(ctx, method, path, params, body, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return classify(ctx, fmt.Errorf("decode %s %s: %w", method, path, err))
	}
	return nil
}

// do sends the request and returns a 2xx response. Callers close the body.
func (c *Client) do(ctx context.Context, method, path string, params, body any, accept string) (*http.Response, error) {
	query, err := SanitizeParams(params)
	if err != nil {
		return nil, err
	}
	target := c.resolve(path, query)

	reader, contentType, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if c.verbose {
		c.logger.Info("api request",
			slog.String("method", method),
			slog.String("url", target),
			slog.String("params", query.Encode()),
		)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = classify(ctx, err)
		if c.verbose && !IsCanceled(err) {
			c.logger.Warn("api error",
				slog.String("method", method),
				slog.String("url", target),
				slog.Any("error", err),
			)
		}
		return nil, &Error{Method: method, URL: target, Err: err}
	}

	if c.verbose {
		c.logger.Info("api response",
			slog.String("method", method),
			slog.String("url", target),
			slog.Int("status", resp.StatusCode),
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		_ = resp.Body.Close()
		return nil, &Error{
			Method: method,
			URL:    target,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(data)),
		}
	}
	return resp, nil
}

func (c *Client) resolve(path string, query url.Values) string {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	if len(query) == 0 {
		return target
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + query.Encode()
}

// encodeBody picks the Content-Type from the payload shape: plain values are
// sent as JSON, multipart forms carry their boundary, raw bytes and readers
// go out as octet streams.
func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case *Multipart:
		if b == nil {
			return nil, "", nil
		}
		return b.encode()
	case []byte:
		return bytes.NewReader(b), "application/octet-stream", nil
	case io.Reader:
		return b, "application/octet-stream", nil
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(raw), "application/json", nil
	}
}

func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
