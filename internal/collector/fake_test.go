package collector

import (
	"context"
	"os/exec"
	"strings"
	"sync"
)

type fakeResult struct {
	out []byte
	err error
}

// fakeRunner answers commands from a table keyed by "name arg1 arg2...".
// Commands listed in missing fail LookPath and Run with exec.ErrNotFound.
type fakeRunner struct {
	mu      sync.Mutex
	results map[string]fakeResult
	missing map[string]bool
	calls   []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{results: map[string]fakeResult{}, missing: map[string]bool{}}
}

func (f *fakeRunner) on(cmd string, out string, err error) *fakeRunner {
	f.results[cmd] = fakeResult{out: []byte(out), err: err}
	return f
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()
	if f.missing[name] {
		return nil, &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, ok := f.results[key]
	if !ok {
		return nil, &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	return r.out, r.err
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.missing[name] {
		return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	return "/usr/bin/" + name, nil
}

func (f *fakeRunner) called(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}
