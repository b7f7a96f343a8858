package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/photolala/photolala-access/internal/access"
	"github.com/photolala/photolala-access/internal/broker"
	"github.com/photolala/photolala-access/internal/capability"
)

// maxReplayBody caps request bodies buffered so a rejected request can be
// sent again with a renewed credential.
const maxReplayBody = 8 << 20

// errBodyTooLarge is returned for bodies that cannot be replayed.
var errBodyTooLarge = errors.New("request body too large to replay")

// TokenRunner runs an operation with a valid credential for scope.
// *access.Coordinator implements it.
type TokenRunner interface {
	WithToken(ctx context.Context, scope string, op access.TokenOperation) error
}

// credentialTransport attaches a credential to every request and reports an
// upstream 401 as a rejected credential.
type credentialTransport struct {
	runner TokenRunner
	scope  string
	base   http.RoundTripper
}

func (t *credentialTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	err = t.runner.WithToken(req.Context(), t.scope, func(ctx context.Context, cred broker.Credential) error {
		out := req.Clone(ctx)
		if body != nil {
			out.Body = io.NopCloser(bytes.NewReader(body))
			out.ContentLength = int64(len(body))
		}
		out.Header.Set("Authorization", "Bearer "+cred.Token)

		r, err := t.base.RoundTrip(out)
		if err != nil {
			return err
		}

		if r.StatusCode == http.StatusUnauthorized {
			_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 64<<10))
			_ = r.Body.Close()
			return fmt.Errorf("upstream: HTTP 401: %w", capability.ErrCredentialRejected)
		}

		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// replayableBody reads the request body into memory, nil for bodyless requests.
func replayableBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()

	body, err := io.ReadAll(io.LimitReader(req.Body, maxReplayBody+1))
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if len(body) > maxReplayBody {
		return nil, errBodyTooLarge
	}

	return body, nil
}
