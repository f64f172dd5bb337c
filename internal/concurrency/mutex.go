package concurrency

import (
	"fmt"
	"sync"

	"github.com/pscalvm/pscalvm/internal/diag"
)

// mutexSlot backs one handle allocated by MUTEX_CREATE/RCMUTEX_CREATE.
// Both kinds track the owning token so Unlock can reject a foreign or
// double unlock; a reentrant mutex also uses the hold count so the same
// logical owner can re-lock it (§4.7).
type mutexSlot struct {
	mu        sync.Mutex
	reentrant bool

	// Owner bookkeeping.
	reMu     sync.Mutex
	holder   int64 // 0 means unheld; otherwise a caller-supplied owner token
	holdCount int
}

// CreateMutex allocates a plain (non-reentrant) mutex and returns its
// handle.
func (r *Registry) CreateMutex() (int, error) {
	return r.createMutex(false)
}

// CreateRCMutex allocates a reentrant mutex.
func (r *Registry) CreateRCMutex() (int, error) {
	return r.createMutex(true)
}

func (r *Registry) createMutex(reentrant bool) (int, error) {
	r.mutexMu.Lock()
	defer r.mutexMu.Unlock()
	if len(r.mutexes) >= DefaultMaxMutexes {
		return 0, fmt.Errorf("Resource: mutex registry exhausted (max %d)", DefaultMaxMutexes)
	}
	r.nextMutexID++
	id := r.nextMutexID
	r.mutexes[id] = &mutexSlot{reentrant: reentrant}
	return id, nil
}

func (r *Registry) mutex(handle int) (*mutexSlot, error) {
	r.mutexMu.Lock()
	defer r.mutexMu.Unlock()
	m, ok := r.mutexes[handle]
	if !ok {
		return nil, fmt.Errorf("Concurrency: unknown mutex handle %d", handle)
	}
	return m, nil
}

// Lock acquires the mutex identified by handle on behalf of owner (an
// opaque caller-chosen token, typically the current thread/goroutine
// identity). A reentrant mutex already held by owner just bumps the hold
// count instead of blocking.
func (r *Registry) Lock(handle int, owner int64) error {
	m, err := r.mutex(handle)
	if err != nil {
		return err
	}
	if m.reentrant {
		m.reMu.Lock()
		if m.holder == owner && m.holdCount > 0 {
			m.holdCount++
			m.reMu.Unlock()
			return nil
		}
		m.reMu.Unlock()
	}
	m.mu.Lock()
	m.reMu.Lock()
	m.holder = owner
	m.holdCount = 1
	m.reMu.Unlock()
	return nil
}

// Unlock releases the mutex. Unlocking a mutex not currently held by owner
// is a Concurrency runtime error (§4.7, §7) rather than a panic — both the
// reentrant and plain mutex paths check ownership before touching the
// underlying sync.Mutex, since a bare double-unlock would otherwise panic
// instead of surfacing as a VM runtime error.
func (r *Registry) Unlock(handle int, owner int64) error {
	m, err := r.mutex(handle)
	if err != nil {
		return err
	}
	m.reMu.Lock()
	if m.holder != owner || m.holdCount == 0 {
		m.reMu.Unlock()
		return diag.NewRuntimeError(-1, "Concurrency: unlock of mutex %d not held by this owner", handle)
	}
	m.holdCount--
	unlockNow := m.holdCount == 0
	if unlockNow {
		m.holder = 0
	}
	m.reMu.Unlock()
	if unlockNow {
		m.mu.Unlock()
	}
	return nil
}

// Destroy removes a mutex handle. Destroying a locked mutex is a runtime
// error per §4.7 ("Destroying a locked or pending mutex is a runtime
// error").
func (r *Registry) Destroy(handle int) error {
	r.mutexMu.Lock()
	defer r.mutexMu.Unlock()
	m, ok := r.mutexes[handle]
	if !ok {
		return fmt.Errorf("Concurrency: unknown mutex handle %d", handle)
	}
	if !m.mu.TryLock() {
		return fmt.Errorf("Concurrency: cannot destroy locked mutex %d", handle)
	}
	m.mu.Unlock()
	delete(r.mutexes, handle)
	return nil
}
