package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/buger/jsonparser"
	"go.uber.org/zap"
)

// StatusError is a non-2xx answer from the files service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if len(e.Message) == 0 {
		return fmt.Sprintf("files service: %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("files service: %d %s", e.Code, e.Message)
}

// Client talks to one or more files service instances, picked round robin.
type Client struct {
	bases []*url.URL
	next  atomic.Uint32
	http  *http.Client
	log   *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

func NewClient(baseURLs []string, opts ...Option) (*Client, error) {
	if len(baseURLs) == 0 {
		return nil, errors.New("gateway: at least one files service URL is required")
	}
	c := &Client{
		http: &http.Client{Timeout: 30 * time.Second},
		log:  zap.NewNop(),
	}
	for _, raw := range baseURLs {
		u, err := url.Parse(strings.TrimRight(raw, "/"))
		if err != nil {
			return nil, fmt.Errorf("gateway: bad files service URL %q: %w", raw, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("gateway: bad files service URL %q: scheme must be http or https", raw)
		}
		c.bases = append(c.bases, u)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c, nil
}

// Instances returns the configured base URLs.
func (c *Client) Instances() []string {
	out := make([]string, len(c.bases))
	for i, u := range c.bases {
		out[i] = u.String()
	}
	return out
}

func (c *Client) pick() *url.URL {
	n := c.next.Add(1) - 1
	return c.bases[int(n%uint32(len(c.bases)))]
}

// do sends the request and turns non-2xx answers into a *StatusError. On
// success the caller closes the body.
func (c *Client) do(ctx context.Context, base *url.URL, method, p string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	u := *base
	u.Path = strings.TrimRight(u.Path, "/") + p
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if len(contentType) > 0 {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("files service %s: %w", base.Host, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg, err := jsonparser.GetString(b, "message")
	if err != nil {
		msg = strings.TrimSpace(string(b))
	}
	c.log.Debug("files service error",
		zap.String("instance", base.String()),
		zap.String("path", p),
		zap.Int("status", resp.StatusCode))
	return nil, &StatusError{Code: resp.StatusCode, Message: msg}
}

func (c *Client) ListFilesRaw(ctx context.Context) ([]byte, error) {
	resp, err := c.do(ctx, c.pick(), http.MethodGet, "/files/listAll", nil, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) ListFiles(ctx context.Context) ([]string, error) {
	raw, err := c.ListFilesRaw(ctx)
	if err != nil {
		return nil, err
	}

	files := []string{}
	var perr error
	_, err = jsonparser.ArrayEach(raw, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if perr != nil || dataType != jsonparser.String {
			return
		}
		var name string
		if name, perr = jsonparser.ParseString(value); perr == nil {
			files = append(files, name)
		}
	})
	if err == nil {
		err = perr
	}
	if err != nil {
		return nil, fmt.Errorf("decode file list: %w", err)
	}
	return files, nil
}

// Upload stores r under filename and returns the service's message.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	return c.postFile(ctx, "/files/upload", filename, r, nil)
}

// Convert converts r to format and returns the service's message.
func (c *Client) Convert(ctx context.Context, filename string, r io.Reader, format string) (string, error) {
	return c.postFile(ctx, "/files/convert", filename, r, map[string]string{"format": format})
}

func (c *Client) postFile(ctx context.Context, p, filename string, r io.Reader, fields map[string]string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", err
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	resp, err := c.do(ctx, c.pick(), http.MethodPost, p, nil, &buf, mw.FormDataContentType())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return jsonparser.GetString(b, "message")
}

// Download fetches a stored file. The caller closes the response body.
func (c *Client) Download(ctx context.Context, filename string) (*http.Response, error) {
	return c.do(ctx, c.pick(), http.MethodGet, "/files/download/"+filename, nil, nil, "")
}

// Health checks a single instance.
func (c *Client) Health(ctx context.Context, instance string) error {
	for _, base := range c.bases {
		if base.String() != instance {
			continue
		}
		resp, err := c.do(ctx, base, http.MethodGet, "/healthz", nil, nil, "")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if err != nil {
			return err
		}
		if status, _ := jsonparser.GetString(b, "status"); status != "ok" {
			return fmt.Errorf("files service %s: unhealthy status %q", base.Host, status)
		}
		return nil
	}
	return fmt.Errorf("gateway: unknown instance %q", instance)
}
