package spool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/posdesk/internal/printdoc"
)

// GotenbergClient wraps interactions with the Gotenberg API.
type GotenbergClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGotenbergClient constructs a new client.
func NewGotenbergClient(baseURL string, client *http.Client) *GotenbergClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GotenbergClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

// Ping checks if the remote Gotenberg service is available.
func (c *GotenbergClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gotenberg returned status %d", resp.StatusCode)
	}
	return nil
}

// RenderHTML converts a print document into PDF bytes.
func (c *GotenbergClient) RenderHTML(ctx context.Context, doc printdoc.Document) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("gotenberg endpoint required")
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(part, doc.HTML); err != nil {
		return nil, err
	}
	width, height := doc.Layout.Paper()
	fields := [][2]string{
		{"paperWidth", strconv.FormatFloat(width, 'f', 2, 64)},
		{"paperHeight", strconv.FormatFloat(height, 'f', 2, 64)},
		{"marginTop", "0"},
		{"marginBottom", "0"},
		{"marginLeft", "0"},
		{"marginRight", "0"},
		{"preferCssPageSize", "true"},
		{"printBackground", "true"},
		{"waitDelay", "100ms"},
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forms/chromium/convert/html", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("gotenberg response %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return io.ReadAll(resp.Body)
}

// GotenbergSurface renders frames remotely. The document is held locally and
// posted to Gotenberg when the frame prints.
type GotenbergSurface struct {
	client *GotenbergClient
}

// NewGotenbergSurface wraps a client.
func NewGotenbergSurface(client *GotenbergClient) *GotenbergSurface {
	return &GotenbergSurface{client: client}
}

// Open implements Surface.
func (s *GotenbergSurface) Open(_ context.Context, doc printdoc.Document) (Frame, error) {
	return &gotenbergFrame{client: s.client, doc: doc}, nil
}

type gotenbergFrame struct {
	client *GotenbergClient
	doc    printdoc.Document
}

func (f *gotenbergFrame) Load(_ context.Context, html string) (<-chan struct{}, error) {
	f.doc.HTML = html
	loaded := make(chan struct{})
	close(loaded)
	return loaded, nil
}

func (f *gotenbergFrame) Print(ctx context.Context) ([]byte, error) {
	return f.client.RenderHTML(ctx, f.doc)
}

func (f *gotenbergFrame) Close() error {
	f.doc = printdoc.Document{}
	return nil
}
