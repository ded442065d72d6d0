package observer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hl-grid-bot/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrAddressBusy reports a start for an address that already has a
	// running observer.
	ErrAddressBusy = errors.New("observer already running for address")
	// ErrNotFound reports a lookup for an unknown observer id.
	ErrNotFound = errors.New("observer not found")
	// ErrStartAborted reports a start whose entry was stopped or removed
	// while the observer stack was still being built.
	ErrStartAborted = errors.New("observer start aborted")
)

type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusCrashed Status = "crashed"
)

// Runner is the lifecycle surface the registry manages.
type Runner interface {
	Run(ctx context.Context) error
	Stop() error
}

// Notifier delivers out-of-band alerts when an observer dies.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// Factory builds the full observer stack for one address: gateway,
// engine (with state recovery), stream client and observer.
type Factory func(ctx context.Context, address string) (Runner, error)

// Info is the read-only view of a registry entry.
type Info struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	LastError string    `json:"last_error,omitempty"`
}

type entry struct {
	id        string
	address   string
	status    Status
	startedAt time.Time
	lastErr   error
	runner    Runner
}

// Registry is the in-memory directory of observers. One lock guards
// the map; observer shutdown itself always runs outside it.
type Registry struct {
	factory Factory
	m       *metrics.Metrics
	log     *zap.Logger

	notifier Notifier

	mu      sync.Mutex
	entries map[string]*entry
}

func NewRegistry(factory Factory, m *metrics.Metrics, log *zap.Logger) *Registry {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Registry{
		factory: factory,
		m:       m,
		log:     log,
		entries: make(map[string]*entry),
	}
}

// SetNotifier installs an alert channel for observer crashes.
func (r *Registry) SetNotifier(n Notifier) {
	r.notifier = n
}

// Start admits one observer for the address and launches it on its own
// goroutine. A second start for an address that is still running fails
// with ErrAddressBusy.
func (r *Registry) Start(ctx context.Context, address string) (string, error) {
	id := uuid.NewString()

	r.mu.Lock()
	for _, e := range r.entries {
		if e.address == address && e.status == StatusRunning {
			r.mu.Unlock()
			return "", ErrAddressBusy
		}
	}
	// reserve the address before building the stack so a concurrent
	// start cannot slip past the admission check
	e := &entry{id: id, address: address, status: StatusRunning, startedAt: time.Now().UTC()}
	r.entries[id] = e
	r.mu.Unlock()

	runner, err := r.factory(ctx, address)
	if err != nil {
		r.mu.Lock()
		delete(r.entries, id)
		r.mu.Unlock()
		return "", err
	}

	// the entry may have been cleared by StopAll or stopped by id while
	// the factory ran; launching the runner then would leak an observer
	// the registry no longer tracks
	r.mu.Lock()
	current, ok := r.entries[id]
	if !ok || current.status != StatusRunning {
		if ok {
			delete(r.entries, id)
		}
		r.mu.Unlock()
		if stopErr := runner.Stop(); stopErr != nil {
			r.log.Warn("stopping aborted observer failed", zap.String("id", id), zap.Error(stopErr))
		}
		return "", ErrStartAborted
	}
	e.runner = runner
	r.mu.Unlock()

	r.m.ObserversRunning.Inc()
	go func() {
		err := runner.Run(context.Background())
		r.m.ObserversRunning.Dec()
		r.mu.Lock()
		defer r.mu.Unlock()
		current, ok := r.entries[id]
		if !ok {
			return
		}
		if err != nil {
			current.status = StatusCrashed
			current.lastErr = err
			r.log.Error("observer terminated",
				zap.String("id", id),
				zap.String("address", address),
				zap.Error(err))
			r.notifyCrash(id, address, err)
			return
		}
		if current.status == StatusRunning {
			current.status = StatusStopped
		}
	}()

	r.log.Info("observer started", zap.String("id", id), zap.String("address", address))
	return id, nil
}

// Stop transitions the observer to stopped but keeps the entry.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	runner := e.runner
	e.status = StatusStopped
	r.mu.Unlock()

	if runner == nil {
		return nil
	}
	if err := runner.Stop(); err != nil {
		r.log.Warn("observer stop failed", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

// Delete stops the observer and removes its entry.
func (r *Registry) Delete(id string) error {
	if err := r.Stop(id); err != nil && errors.Is(err, ErrNotFound) {
		return err
	}
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
	return nil
}

// StopAll stops every observer best-effort and force-clears the
// registry, so no dangling running entries survive a full shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	runners := make(map[string]Runner, len(r.entries))
	for id, e := range r.entries {
		if e.runner != nil {
			runners[id] = e.runner
		}
	}
	r.mu.Unlock()

	for id, runner := range runners {
		if err := runner.Stop(); err != nil {
			r.log.Warn("observer stop failed during shutdown", zap.String("id", id), zap.Error(err))
		}
	}

	r.mu.Lock()
	r.entries = make(map[string]*entry)
	r.mu.Unlock()
}

// Get returns the entry view for one id.
func (r *Registry) Get(id string) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return Info{}, ErrNotFound
	}
	return e.info(), nil
}

// List returns a snapshot of all entries.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.info())
	}
	return out
}

// ActiveCount reports how many observers are currently running.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.status == StatusRunning {
			n++
		}
	}
	return n
}

func (r *Registry) notifyCrash(id, address string, cause error) {
	if r.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		msg := fmt.Sprintf("observer %s for %s terminated: %v", id, address, cause)
		if err := r.notifier.Send(ctx, msg); err != nil {
			r.log.Warn("crash alert failed", zap.String("id", id), zap.Error(err))
		}
	}()
}

func (e *entry) info() Info {
	info := Info{
		ID:        e.id,
		Address:   e.address,
		Status:    e.status,
		StartedAt: e.startedAt,
	}
	if e.lastErr != nil {
		info.LastError = e.lastErr.Error()
	}
	return info
}
