package observer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeRunner struct {
	stopErr error
	runErr  error
	done    chan struct{}
	once    sync.Once
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{done: make(chan struct{})}
}

func (f *fakeRunner) Run(context.Context) error {
	if f.runErr != nil {
		return f.runErr
	}
	<-f.done
	return nil
}

func (f *fakeRunner) Stop() error {
	f.once.Do(func() { close(f.done) })
	return f.stopErr
}

func staticFactory(runner Runner) Factory {
	return func(context.Context, string) (Runner, error) {
		return runner, nil
	}
}

func TestStartRejectsDuplicateAddress(t *testing.T) {
	reg := NewRegistry(staticFactory(newFakeRunner()), nil, zap.NewNop())
	defer reg.StopAll()

	id, err := reg.Start(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := reg.Start(context.Background(), "0xabc"); !errors.Is(err, ErrAddressBusy) {
		t.Fatalf("expected ErrAddressBusy, got %v", err)
	}
	if reg.ActiveCount() != 1 {
		t.Fatalf("expected exactly one running observer, got %d", reg.ActiveCount())
	}
	if _, err := reg.Get(id); err != nil {
		t.Fatalf("get: %v", err)
	}
}

func TestStopKeepsEntry(t *testing.T) {
	reg := NewRegistry(staticFactory(newFakeRunner()), nil, zap.NewNop())
	defer reg.StopAll()

	id, err := reg.Start(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := reg.Stop(id); err != nil {
		t.Fatalf("stop: %v", err)
	}
	info, err := reg.Get(id)
	if err != nil {
		t.Fatalf("get after stop: %v", err)
	}
	if info.Status != StatusStopped {
		t.Fatalf("expected stopped status, got %s", info.Status)
	}
	if err := reg.Stop("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStopFreesAddressForRestart(t *testing.T) {
	reg := NewRegistry(staticFactory(newFakeRunner()), nil, zap.NewNop())
	defer reg.StopAll()

	id, err := reg.Start(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := reg.Stop(id); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := reg.Start(context.Background(), "0xabc"); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	reg := NewRegistry(staticFactory(newFakeRunner()), nil, zap.NewNop())

	id, err := reg.Start(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := reg.Delete(id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := reg.Get(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := reg.Delete("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStopAllClearsEvenOnFailure(t *testing.T) {
	failing := newFakeRunner()
	failing.stopErr = errors.New("close failed")
	runners := []Runner{newFakeRunner(), failing, newFakeRunner()}
	i := 0
	factory := func(context.Context, string) (Runner, error) {
		r := runners[i]
		i++
		return r, nil
	}
	reg := NewRegistry(factory, nil, zap.NewNop())
	for _, addr := range []string{"0xa", "0xb", "0xc"} {
		if _, err := reg.Start(context.Background(), addr); err != nil {
			t.Fatalf("start %s: %v", addr, err)
		}
	}

	reg.StopAll()
	if entries := reg.List(); len(entries) != 0 {
		t.Fatalf("expected empty registry after StopAll, got %d entries", len(entries))
	}
}

func TestFactoryFailureReleasesAddress(t *testing.T) {
	calls := 0
	factory := func(context.Context, string) (Runner, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("gateway unavailable")
		}
		return newFakeRunner(), nil
	}
	reg := NewRegistry(factory, nil, zap.NewNop())
	defer reg.StopAll()

	if _, err := reg.Start(context.Background(), "0xabc"); err == nil {
		t.Fatal("expected factory error")
	}
	if _, err := reg.Start(context.Background(), "0xabc"); err != nil {
		t.Fatalf("address must be free after failed start: %v", err)
	}
}

func TestShutdownDuringStartAbortsRunner(t *testing.T) {
	runner := newFakeRunner()
	building := make(chan struct{})
	release := make(chan struct{})
	factory := func(context.Context, string) (Runner, error) {
		close(building)
		<-release
		return runner, nil
	}
	reg := NewRegistry(factory, nil, zap.NewNop())

	errCh := make(chan error, 1)
	go func() {
		_, err := reg.Start(context.Background(), "0xabc")
		errCh <- err
	}()

	<-building
	reg.StopAll()
	close(release)

	if err := <-errCh; !errors.Is(err, ErrStartAborted) {
		t.Fatalf("expected ErrStartAborted, got %v", err)
	}
	if entries := reg.List(); len(entries) != 0 {
		t.Fatalf("expected empty registry, got %d entries", len(entries))
	}
	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("aborted runner was never stopped")
	}
}

func TestStopDuringStartAbortsRunner(t *testing.T) {
	runner := newFakeRunner()
	building := make(chan struct{})
	release := make(chan struct{})
	factory := func(context.Context, string) (Runner, error) {
		close(building)
		<-release
		return runner, nil
	}
	reg := NewRegistry(factory, nil, zap.NewNop())
	defer reg.StopAll()

	errCh := make(chan error, 1)
	go func() {
		_, err := reg.Start(context.Background(), "0xabc")
		errCh <- err
	}()

	<-building
	// the reserved entry is the only one; stop it by its listed id
	entries := reg.List()
	if len(entries) != 1 {
		t.Fatalf("expected one reserved entry, got %d", len(entries))
	}
	if err := reg.Stop(entries[0].ID); err != nil {
		t.Fatalf("stop reserved entry: %v", err)
	}
	close(release)

	if err := <-errCh; !errors.Is(err, ErrStartAborted) {
		t.Fatalf("expected ErrStartAborted, got %v", err)
	}
	if _, err := reg.Get(entries[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("aborted entry must be removed, got %v", err)
	}
}

func TestCrashedRunnerMarksEntry(t *testing.T) {
	crashing := newFakeRunner()
	crashing.runErr = errors.New("stream exhausted")
	reg := NewRegistry(staticFactory(crashing), nil, zap.NewNop())

	id, err := reg.Start(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		info, err := reg.Get(id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if info.Status == StatusCrashed {
			if info.LastError == "" {
				t.Fatal("expected last error on crashed entry")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("observer never marked crashed, status %s", info.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
