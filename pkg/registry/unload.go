package registry

import (
	"context"
	"fmt"
	"sync"
)

// UnloadTicket tracks one requested unload until it completes.
type UnloadTicket struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newUnloadTicket() *UnloadTicket {
	return &UnloadTicket{done: make(chan struct{})}
}

// Done is closed once the unload completed or failed.
func (t *UnloadTicket) Done() <-chan struct{} {
	return t.done
}

// Err returns the unload error. Valid after Done is closed.
func (t *UnloadTicket) Err() error {
	<-t.done
	return t.err
}

// Wait blocks until the unload finishes or ctx ends.
func (t *UnloadTicket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *UnloadTicket) resolve(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// QueueUnload marks name for unloading and returns its ticket. Requests for
// an application that already has an unload pending share its ticket.
func (r *Registry) QueueUnload(name string) (*UnloadTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrApplicationNotFound, name)
	}
	if t, ok := r.unloads[name]; ok {
		return t, nil
	}
	t := newUnloadTicket()
	r.unloads[name] = t
	return t, nil
}

// PendingUnload returns the ticket of a pending unload, or nil.
func (r *Registry) PendingUnload(name string) *UnloadTicket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unloads[name]
}

// ResolveUnload completes the pending unload of name, if any.
func (r *Registry) ResolveUnload(name string, err error) {
	r.mu.Lock()
	t := r.unloads[name]
	delete(r.unloads, name)
	r.mu.Unlock()
	if t != nil {
		t.resolve(err)
	}
}
