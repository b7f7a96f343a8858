package access

import (
	"context"
	"fmt"
	"sync"

	"github.com/photolala/photolala-access/internal/broker"
	"github.com/photolala/photolala-access/internal/capability"
	"github.com/photolala/photolala-access/internal/grants"
)

type fixedRegistry struct {
	id *broker.Identity
}

func (r fixedRegistry) CurrentIdentity(context.Context) (*broker.Identity, error) {
	return r.id, nil
}

// countingAuth issues "<scope>#<generation>" tokens; ClearToken bumps the generation.
type countingAuth struct {
	mu         sync.Mutex
	generation map[string]int
	gets       int
	clears     int
}

func newCountingAuth() *countingAuth {
	return &countingAuth{generation: make(map[string]int)}
}

func (a *countingAuth) GetToken(_ context.Context, _ broker.Identity, scope string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.gets++

	return fmt.Sprintf("%s#%d", scope, a.generation[scope]), nil
}

func (a *countingAuth) ClearToken(_ context.Context, _ broker.Identity, scope string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.clears++
	a.generation[scope]++

	return nil
}

func (a *countingAuth) counts() (gets, clears int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.gets, a.clears
}

// remoteService rejects any token listed in rejected, or every token when
// rejectAll is set.
type remoteService struct {
	mu        sync.Mutex
	rejected  map[string]bool
	rejectAll bool
	calls     int
}

func (s *remoteService) call(_ context.Context, cred broker.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.rejectAll || s.rejected[cred.Token] {
		return fmt.Errorf("remote: HTTP 401: %w", capability.ErrCredentialRejected)
	}

	return nil
}

func (s *remoteService) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

// releaseCounter wraps a ScopeAPI and counts live handles.
type releaseCounter struct {
	grants.ScopeAPI

	mu   sync.Mutex
	live int
}

func (r *releaseCounter) Activate(ctx context.Context, blob []byte) (grants.Activation, error) {
	act, err := r.ScopeAPI.Activate(ctx, blob)
	if err == nil {
		r.mu.Lock()
		r.live++
		r.mu.Unlock()
	}

	return act, err
}

func (r *releaseCounter) Release(h grants.Handle) error {
	r.mu.Lock()
	r.live--
	r.mu.Unlock()

	return r.ScopeAPI.Release(h)
}

func (r *releaseCounter) liveHandles() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.live
}
