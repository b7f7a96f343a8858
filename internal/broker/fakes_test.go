package broker

import (
	"context"
	"fmt"
	"sync"
)

// staticRegistry always reports the same identity (or none).
type staticRegistry struct {
	id  *Identity
	err error
}

func (r *staticRegistry) CurrentIdentity(context.Context) (*Identity, error) {
	return r.id, r.err
}

// fakeAuth issues "<scope>#<generation>" tokens; ClearToken bumps the generation.
type fakeAuth struct {
	mu         sync.Mutex
	generation map[string]int
	getCalls   int
	clearCalls int
	failures   []error // returned by successive GetToken calls before succeeding
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{generation: make(map[string]int)}
}

func (f *fakeAuth) GetToken(_ context.Context, id Identity, scope string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getCalls++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return "", err
	}

	return fmt.Sprintf("%s:%s#%d", id.AccountID, scope, f.generation[scope]), nil
}

func (f *fakeAuth) ClearToken(_ context.Context, _ Identity, scope string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.clearCalls++
	f.generation[scope]++

	return nil
}

func (f *fakeAuth) calls() (get, clear int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.getCalls, f.clearCalls
}
