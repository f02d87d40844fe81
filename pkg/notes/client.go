package notes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gobeyondidentity/podnotes/pkg/account"
	"github.com/gobeyondidentity/podnotes/pkg/dpop"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultContainer is the container path, relative to the pod root.
	DefaultContainer = "notes/"

	// DefaultConcurrency bounds parallel member fetches while listing.
	DefaultConcurrency = 4

	turtleType       = "text/turtle"
	maxDocumentBytes = 4 << 20
)

var (
	// DefaultWriteStatuses are the PUT responses treated as success.
	DefaultWriteStatuses = []int{http.StatusCreated, http.StatusResetContent}

	// DefaultDeleteStatuses are the DELETE responses treated as success.
	DefaultDeleteStatuses = []int{http.StatusOK, http.StatusAccepted, http.StatusNoContent, http.StatusResetContent}
)

// Client reads and writes note documents in one container of a pod.
type Client struct {
	podURL         string
	container      string
	httpClient     *http.Client
	writeStatuses  map[int]bool
	deleteStatuses map[int]bool
	concurrency    int
	logger         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithContainer sets the container path relative to the pod root.
func WithContainer(container string) Option {
	return func(c *Client) {
		if container != "" {
			c.container = strings.TrimPrefix(container, "/")
			if !strings.HasSuffix(c.container, "/") {
				c.container += "/"
			}
		}
	}
}

// WithWriteStatuses replaces the set of PUT statuses treated as success.
func WithWriteStatuses(codes ...int) Option {
	return func(c *Client) {
		if len(codes) > 0 {
			c.writeStatuses = statusSet(codes)
		}
	}
}

// WithDeleteStatuses replaces the set of DELETE statuses treated as success.
func WithDeleteStatuses(codes ...int) Option {
	return func(c *Client) {
		if len(codes) > 0 {
			c.deleteStatuses = statusSet(codes)
		}
	}
}

// WithConcurrency bounds parallel member fetches while listing.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client for the pod rooted at podURL.
func New(podURL string, opts ...Option) *Client {
	if !strings.HasSuffix(podURL, "/") {
		podURL += "/"
	}
	c := &Client{
		podURL:         podURL,
		container:      DefaultContainer,
		httpClient:     http.DefaultClient,
		writeStatuses:  statusSet(DefaultWriteStatuses),
		deleteStatuses: statusSet(DefaultDeleteStatuses),
		concurrency:    DefaultConcurrency,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ContainerURL returns the URL of the notes container.
func (c *Client) ContainerURL() string {
	return c.podURL + c.container
}

// ResourceURL returns the URL of the document holding note id.
func (c *Client) ResourceURL(id string) string {
	return c.ContainerURL() + url.PathEscape(id) + ".ttl"
}

// Create writes note and reports success. Failures are logged.
func (c *Client) Create(ctx context.Context, tok *account.AccessToken, note Note) bool {
	if err := c.Put(ctx, tok, note); err != nil {
		c.logger.Error("notes.create_failed", "id", note.ID, "error", err)
		return false
	}
	return true
}

// Update overwrites note and reports success. Failures are logged.
func (c *Client) Update(ctx context.Context, tok *account.AccessToken, note Note) bool {
	if err := c.Put(ctx, tok, note); err != nil {
		c.logger.Error("notes.update_failed", "id", note.ID, "error", err)
		return false
	}
	return true
}

// Delete removes note id and reports success. Failures are logged.
func (c *Client) Delete(ctx context.Context, tok *account.AccessToken, id string) bool {
	if err := c.Remove(ctx, tok, id); err != nil {
		c.logger.Error("notes.delete_failed", "id", id, "error", err)
		return false
	}
	return true
}

// Put writes note to its resource URL, replacing any existing document.
func (c *Client) Put(ctx context.Context, tok *account.AccessToken, note Note) error {
	if note.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidNote)
	}
	resourceURL := c.ResourceURL(note.ID)
	body, err := EncodeNote(resourceURL, note)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, tok, http.MethodPut, resourceURL, body)
	if err != nil {
		return err
	}
	defer drain(resp)

	if !c.writeStatuses[resp.StatusCode] {
		return statusError(resp)
	}
	c.logger.Debug("notes.put", "id", note.ID, "status", resp.StatusCode)
	return nil
}

// Remove deletes the document holding note id.
func (c *Client) Remove(ctx context.Context, tok *account.AccessToken, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidNote)
	}
	resp, err := c.do(ctx, tok, http.MethodDelete, c.ResourceURL(id), nil)
	if err != nil {
		return err
	}
	defer drain(resp)

	if !c.deleteStatuses[resp.StatusCode] {
		return statusError(resp)
	}
	c.logger.Debug("notes.delete", "id", id, "status", resp.StatusCode)
	return nil
}

// Get fetches and parses a single note document.
func (c *Client) Get(ctx context.Context, tok *account.AccessToken, resourceURL string) (Note, error) {
	body, err := c.fetch(ctx, tok, resourceURL)
	if err != nil {
		return Note{}, err
	}
	return DecodeNote(body, resourceURL)
}

// List fetches the container and then every member it contains. Members
// that cannot be fetched or parsed are skipped and reported in Failed; a
// failure to read the container itself is returned as an error.
func (c *Client) List(ctx context.Context, tok *account.AccessToken) (*ListResult, error) {
	containerURL := c.ContainerURL()
	body, err := c.fetch(ctx, tok, containerURL)
	if err != nil {
		return nil, err
	}
	entries, err := ExtractEntries(body, containerURL)
	if err != nil {
		return nil, err
	}

	notes := make([]*Note, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			note, err := c.Get(gctx, tok, entry.URL)
			if err != nil {
				c.logger.Warn("notes.member_skipped", "url", entry.URL, "error", err)
				return nil
			}
			note.Modified = entry.Modified
			note.Size = entry.Size
			notes[i] = &note
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrTransport, containerURL, err)
	}

	result := &ListResult{Notes: make([]Note, 0, len(entries))}
	for i, note := range notes {
		if note == nil {
			result.Failed = append(result.Failed, entries[i].URL)
			continue
		}
		result.Notes = append(result.Notes, *note)
	}
	return result, nil
}

func (c *Client) fetch(ctx context.Context, tok *account.AccessToken, resourceURL string) ([]byte, error) {
	resp, err := c.do(ctx, tok, http.MethodGet, resourceURL, nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrTransport, resourceURL, err)
	}
	return body, nil
}

// do sends one request authenticated with tok and a fresh proof from tok's key.
func (c *Client) do(ctx context.Context, tok *account.AccessToken, method, resourceURL string, body []byte) (*http.Response, error) {
	if tok == nil || tok.Token == "" || tok.Key == nil {
		return nil, ErrNoToken
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, resourceURL, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrInvalidNote, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", turtleType)
	} else if method == http.MethodGet {
		req.Header.Set("Accept", turtleType)
	}

	client := dpop.NewClient(dpop.NewGenerator(tok.Key),
		dpop.WithAccessToken(tok.Token),
		dpop.WithHTTPClient(c.httpClient),
	)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, resourceURL, err)
	}
	return resp, nil
}

func statusError(resp *http.Response) *StatusError {
	return &StatusError{
		Method:     resp.Request.Method,
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Auth:       dpop.ParseAuthError(resp),
	}
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxDocumentBytes))
	resp.Body.Close()
}

func statusSet(codes []int) map[int]bool {
	set := make(map[int]bool, len(codes))
	for _, code := range codes {
		set[code] = true
	}
	return set
}
