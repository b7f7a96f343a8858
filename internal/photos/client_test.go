package photos

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photolala/photolala-access/internal/capability"
)

func TestListAlbums_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/albums", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "25", r.URL.Query().Get("pageSize"))
		assert.Equal(t, "p2", r.URL.Query().Get("pageToken"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"albums":[{"id":"a1","title":"Summer","mediaItemsCount":"12"}],"nextPageToken":"p3"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)

	page, err := c.ListAlbums(context.Background(), "tok-1", 25, "p2")
	require.NoError(t, err)
	require.Len(t, page.Albums, 1)
	assert.Equal(t, "Summer", page.Albums[0].Title)
	assert.Equal(t, "12", page.Albums[0].MediaItemsCount)
	assert.Equal(t, "p3", page.NextPageToken)
}

func TestListAlbums_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		want      error
		rejected  bool
		retryable bool
	}{
		{
			name:     "unauthorized is a credential rejection",
			status:   http.StatusUnauthorized,
			body:     `{"error":{"code":401,"message":"Request had invalid authentication credentials.","status":"UNAUTHENTICATED"}}`,
			want:     ErrUnauthorized,
			rejected: true,
		},
		{name: "forbidden", status: http.StatusForbidden, body: `{}`, want: ErrForbidden},
		{
			name:   "permission denied is a scope denial",
			status: http.StatusForbidden,
			body:   `{"error":{"code":403,"message":"Request had insufficient authentication scopes.","status":"PERMISSION_DENIED"}}`,
			want:   ErrScopeDenied,
		},
		{name: "throttled", status: http.StatusTooManyRequests, body: ``, want: ErrThrottled, retryable: true},
		{name: "server error", status: http.StatusBadGateway, body: `oops`, want: ErrServerError, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, srv.Client(), nil).ListAlbums(context.Background(), "tok", 0, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.rejected, capabilityRejected(err))
			assert.Equal(t, tt.retryable, IsRetryable(err))

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
		})
	}
}

func TestAPIError_DecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"expired","status":"UNAUTHENTICATED"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client(), nil).ListAlbums(context.Background(), "tok", 0, "")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "expired", apiErr.Message)
	assert.Equal(t, "UNAUTHENTICATED", apiErr.Status)
	assert.Equal(t, "photos: HTTP 401 UNAUTHENTICATED: expired", apiErr.Error())
}

func TestScopeDenied_NeedsUserAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"insufficient scopes","status":"PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client(), nil).ListAlbums(context.Background(), "tok", 0, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, err, capability.ErrPermanentAuth)
	assert.True(t, capability.NeedsUserAction(err))
	assert.False(t, capabilityRejected(err))
	assert.False(t, IsRetryable(err))
}

func capabilityRejected(err error) bool {
	return errors.Is(err, capability.ErrCredentialRejected)
}

func TestListMediaItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mediaItems", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("pageToken"))
		_, _ = w.Write([]byte(`{"mediaItems":[{"id":"m1","filename":"IMG_0001.HEIC","mimeType":"image/heic"}]}`))
	}))
	defer srv.Close()

	page, err := NewClient(srv.URL, srv.Client(), nil).ListMediaItems(context.Background(), "tok", 10, "")
	require.NoError(t, err)
	require.Len(t, page.MediaItems, 1)
	assert.Equal(t, "IMG_0001.HEIC", page.MediaItems[0].Filename)
	assert.Empty(t, page.NextPageToken)
}
