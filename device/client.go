package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/moyoez/partyline-console/tool"
)

const snippetLimit = 256

// Client is the HTTP/JSON transport to the collaborator.
type Client struct {
	base     string
	origin   string
	http     *http.Client
	download *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the client used for JSON calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithDownloadClient replaces the client used for binary downloads.
func WithDownloadClient(hc *http.Client) Option {
	return func(c *Client) { c.download = hc }
}

// New creates a client for base, already resolved with ResolveBase.
// An empty base targets SameOrigin.
func New(base string, opts ...Option) *Client {
	c := &Client{
		base:   base,
		origin: base,
	}
	if c.origin == "" {
		c.origin = SameOrigin
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = tool.NewHTTPClient(false)
	}
	if c.download == nil {
		c.download = tool.NewDownloadHTTPClient(false)
	}
	return c
}

// Base returns the configured base, empty for same-origin.
func (c *Client) Base() string { return c.base }

// Origin returns the address requests are actually sent to.
func (c *Client) Origin() string { return c.origin }

// Payload is a decoded response. Exactly one of JSON or Text is meaningful,
// depending on the declared content type.
type Payload struct {
	Method      string
	Path        string
	Status      int
	ContentType string
	Raw         []byte
	JSON        any
	Text        string
}

// IsJSON reports whether the response declared a JSON content type.
func (p *Payload) IsJSON() bool {
	return isJSONContentType(p.ContentType)
}

// Decode decodes the raw JSON body into v.
func (p *Payload) Decode(v any) error {
	if !p.IsJSON() {
		return &DecodeError{Method: p.Method, Path: p.Path, ContentType: p.ContentType, Err: ErrNotJSON}
	}
	if err := sonic.Unmarshal(p.Raw, v); err != nil {
		return &DecodeError{Method: p.Method, Path: p.Path, ContentType: p.ContentType, Err: err}
	}
	return nil
}

// Get issues a single GET.
func (c *Client) Get(ctx context.Context, path string) (*Payload, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post issues a single POST with body encoded as JSON. A nil body posts {}.
func (c *Client) Post(ctx context.Context, path string, body any) (*Payload, error) {
	if body == nil {
		body = struct{}{}
	}
	payload, err := sonic.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s body: %v", path, err)
	}
	return c.do(ctx, http.MethodPost, path, payload)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*Payload, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := tool.NewHTTPReqWithApplication(http.NewRequestWithContext(ctx, method, tool.JoinBase(c.origin, path), reader))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s %s request: %v", method, path, err)
	}
	reqID := tool.GenerateRequestID()
	req.Header.Set("X-Request-Id", reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &TransportError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Snippet: readSnippet(resp.Body),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read body: %w", method, path, err)
	}
	p := &Payload{
		Method:      method,
		Path:        path,
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Raw:         raw,
	}
	if p.IsJSON() {
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := sonic.Unmarshal(raw, &p.JSON); err != nil {
				return nil, &DecodeError{Method: method, Path: path, ContentType: p.ContentType, Err: err}
			}
		}
	} else {
		p.Text = string(raw)
	}
	tool.DefaultLogger.Debugf("%s %s -> %d (%d bytes, id %s)", method, path, resp.StatusCode, len(raw), reqID)
	return p, nil
}

// Download streams a binary resource into w.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tool.JoinBase(c.origin, path), nil)
	if err != nil {
		return 0, &ResourceError{Path: path, Err: err}
	}
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("X-Request-Id", tool.GenerateRequestID())

	resp, err := c.download.Do(req)
	if err != nil {
		return 0, &ResourceError{Path: path, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return 0, &ResourceError{
			Path:   path,
			Status: resp.StatusCode,
			Err:    &TransportError{Method: http.MethodGet, Path: path, Status: resp.StatusCode, Snippet: readSnippet(resp.Body)},
		}
	}
	n, err := tool.CopyWithContext(ctx, w, resp.Body)
	if err != nil {
		return n, &ResourceError{Path: path, Err: err}
	}
	tool.DefaultLogger.Debugf("GET %s -> %d bytes downloaded", path, n)
	return n, nil
}

// readSnippet never fails: an unreadable body yields an empty snippet.
func readSnippet(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, snippetLimit))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func isJSONContentType(ct string) bool {
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
