package photos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

const (
	// DefaultBaseURL is the Photos Library API root.
	DefaultBaseURL = "https://photoslibrary.googleapis.com/v1"

	userAgent = "photolala-access/1.0"

	// maxErrorBody caps how much of an error response is kept for messages.
	maxErrorBody = 64 << 10
)

// Album is the subset of the API's album resource the client exposes.
type Album struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	ProductURL      string `json:"productUrl"`
	MediaItemsCount string `json:"mediaItemsCount"`
}

// AlbumPage is one page of albums.list.
type AlbumPage struct {
	Albums        []Album `json:"albums"`
	NextPageToken string  `json:"nextPageToken"`
}

// MediaItem is the subset of the API's mediaItem resource the client exposes.
type MediaItem struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	BaseURL  string `json:"baseUrl"`
}

// MediaItemPage is one page of mediaItems.list.
type MediaItemPage struct {
	MediaItems    []MediaItem `json:"mediaItems"`
	NextPageToken string      `json:"nextPageToken"`
}

// Client calls the Photos Library API with a caller-supplied bearer token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Photos Library API client.
// baseURL is typically DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger}
}

// ListAlbums returns one page of the user's albums.
func (c *Client) ListAlbums(ctx context.Context, token string, pageSize int, pageToken string) (AlbumPage, error) {
	var page AlbumPage
	if err := c.get(ctx, token, "/albums", pageQuery(pageSize, pageToken), &page); err != nil {
		return AlbumPage{}, err
	}

	return page, nil
}

// ListMediaItems returns one page of the user's media items, newest first.
func (c *Client) ListMediaItems(ctx context.Context, token string, pageSize int, pageToken string) (MediaItemPage, error) {
	var page MediaItemPage
	if err := c.get(ctx, token, "/mediaItems", pageQuery(pageSize, pageToken), &page); err != nil {
		return MediaItemPage{}, err
	}

	return page, nil
}

func pageQuery(pageSize int, pageToken string) url.Values {
	q := url.Values{}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	return q
}

// get performs one GET and decodes a JSON body into out.
func (c *Client) get(ctx context.Context, token, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("photos: creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("photos: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if sentinel := classifyStatus(resp.StatusCode); sentinel != nil {
		apiErr := decodeError(resp, sentinel)
		c.logger.WarnContext(ctx, "photos request failed",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("rpc_status", apiErr.Status),
		)

		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("photos: decoding %s response: %w", path, err)
	}

	c.logger.DebugContext(ctx, "photos request succeeded",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return nil
}

// decodeError reads a google.rpc error envelope, falling back to the raw body.
func decodeError(resp *http.Response, sentinel error) *APIError {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		body = []byte("(failed to read response body)")
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    string(body),
		Err:        sentinel,
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Status = envelope.Error.Status
	}

	if resp.StatusCode == http.StatusForbidden && apiErr.Status == rpcPermissionDenied {
		apiErr.Err = ErrScopeDenied
	}

	return apiErr
}
